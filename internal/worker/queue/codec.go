package queue

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/hls-transcoder/internal/worker/domain"
)

// Codec serializes jobs for a transport
type Codec interface {
	Name() string
	ContentType() string
	Encode(job domain.VideoJob) ([]byte, error)
	Decode(data []byte) (domain.VideoJob, error)
}

// CodecByName returns the codec registered under name
func CodecByName(name string) (Codec, error) {
	switch name {
	case "json":
		return JSONCodec{}, nil
	case "gob":
		return GobCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", name)
	}
}

// JSONCodec encodes jobs as UTF-8 JSON objects
type JSONCodec struct{}

func (JSONCodec) Name() string        { return "json" }
func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Encode(job domain.VideoJob) ([]byte, error) {
	return json.Marshal(job)
}

func (JSONCodec) Decode(data []byte) (domain.VideoJob, error) {
	var job domain.VideoJob
	if err := json.Unmarshal(data, &job); err != nil {
		return domain.VideoJob{}, fmt.Errorf("failed to decode json job: %w", err)
	}
	return job, nil
}

// GobCodec encodes jobs with encoding/gob
type GobCodec struct{}

func (GobCodec) Name() string        { return "gob" }
func (GobCodec) ContentType() string { return "application/x-gob" }

func (GobCodec) Encode(job domain.VideoJob) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(job); err != nil {
		return nil, fmt.Errorf("failed to encode gob job: %w", err)
	}
	return buf.Bytes(), nil
}

func (GobCodec) Decode(data []byte) (domain.VideoJob, error) {
	var job domain.VideoJob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&job); err != nil {
		return domain.VideoJob{}, fmt.Errorf("failed to decode gob job: %w", err)
	}
	return job, nil
}

func encodeDeadLetter(dl domain.DeadLetter) ([]byte, error) {
	data, err := json.Marshal(dl)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dead letter: %w", err)
	}
	return data, nil
}
