package hub

import (
	"encoding/binary"
	"errors"
	"io"
)

var (
	ErrInvalidFrame  = errors.New("invalid frame format")
	ErrFrameTooLarge = errors.New("frame too large")
)

const (
	frameLenSize = 4
	topicLenSize = 2
	MaxFrameSize = 1 * 1024 * 1024
	MaxTopicLen  = 1024
)

// Command codes
const (
	CmdPublish   = 1
	CmdSubscribe = 2
)

// EncodeCommand encodes a request frame body:
// Command(1) + TopicLen(2) + Topic + Payload.
func EncodeCommand(cmd uint8, topic string, payload []byte) ([]byte, error) {
	topicBytes := []byte(topic)
	if len(topicBytes) > MaxTopicLen {
		return nil, ErrFrameTooLarge
	}
	size := 1 + topicLenSize + len(topicBytes) + len(payload)
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, size)
	buf[0] = cmd
	offset := 1
	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(topicBytes)))
	offset += topicLenSize
	copy(buf[offset:], topicBytes)
	offset += len(topicBytes)
	if len(payload) > 0 {
		copy(buf[offset:], payload)
	}
	return buf, nil
}

// DecodeCommand decodes a request frame body.
func DecodeCommand(data []byte) (cmd uint8, topic string, payload []byte, err error) {
	if len(data) < 1+topicLenSize {
		return 0, "", nil, ErrInvalidFrame
	}
	cmd = data[0]
	offset := 1
	topicLen := binary.LittleEndian.Uint16(data[offset:])
	offset += topicLenSize
	if offset+int(topicLen) > len(data) {
		return 0, "", nil, ErrInvalidFrame
	}
	topic = string(data[offset : offset+int(topicLen)])
	offset += int(topicLen)
	if offset < len(data) {
		payload = make([]byte, len(data)-offset)
		copy(payload, data[offset:])
	}
	return cmd, topic, payload, nil
}

// EncodeMessage encodes a message frame body streamed to a subscriber:
// TopicLen(2) + Topic + Payload.
func EncodeMessage(topic string, payload []byte) ([]byte, error) {
	topicBytes := []byte(topic)
	if len(topicBytes) > MaxTopicLen {
		return nil, ErrFrameTooLarge
	}
	size := topicLenSize + len(topicBytes) + len(payload)
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:], uint16(len(topicBytes)))
	offset := topicLenSize
	copy(buf[offset:], topicBytes)
	offset += len(topicBytes)
	if len(payload) > 0 {
		copy(buf[offset:], payload)
	}
	return buf, nil
}

// DecodeMessage decodes a message frame body.
func DecodeMessage(data []byte) (topic string, payload []byte, err error) {
	if len(data) < topicLenSize {
		return "", nil, ErrInvalidFrame
	}
	topicLen := binary.LittleEndian.Uint16(data[0:])
	offset := topicLenSize
	if offset+int(topicLen) > len(data) {
		return "", nil, ErrInvalidFrame
	}
	topic = string(data[offset : offset+int(topicLen)])
	offset += int(topicLen)
	if offset < len(data) {
		payload = make([]byte, len(data)-offset)
		copy(payload, data[offset:])
	}
	return topic, payload, nil
}

func readFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, frameLenSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, data []byte) error {
	lenBuf := make([]byte, frameLenSize)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}
