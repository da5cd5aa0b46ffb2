package vae

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

const defaultRemoteTimeout = 5 * time.Minute

// RemoteEncoder calls a model server exposing a TensorFlow Serving style
// REST predict endpoint: POST {base}/v1/models/{name}:predict.
type RemoteEncoder struct {
	client   *http.Client
	endpoint string
	zSize    int
}

type predictInstance struct {
	Inputs   [][]float64 `json:"inputs"`
	Lengths  int         `json:"lengths"`
	Controls [][]float64 `json:"controls,omitempty"`
}

type predictRequest struct {
	Instances []predictInstance `json:"instances"`
}

type prediction struct {
	Z     []float64 `json:"z"`
	Mu    []float64 `json:"mu"`
	Sigma []float64 `json:"sigma"`
}

type predictResponse struct {
	Predictions []prediction `json:"predictions"`
	Error       string       `json:"error"`
}

// NewRemoteEncoder targets the model named cfg.Name on the server at baseURL.
// A nil client gets a default one with a generous timeout.
func NewRemoteEncoder(baseURL string, cfg Config, client *http.Client) *RemoteEncoder {
	if client == nil {
		client = &http.Client{Timeout: defaultRemoteTimeout}
	}
	return &RemoteEncoder{
		client:   client,
		endpoint: fmt.Sprintf("%s/v1/models/%s:predict", strings.TrimRight(baseURL, "/"), cfg.Name),
		zSize:    cfg.ZSize,
	}
}

func (e *RemoteEncoder) Encode(ctx context.Context, examples []Example) (Encoding, error) {
	log := modelLog.Named("RemoteEncoder")

	if len(examples) == 0 {
		return Encoding{}, errors.Wrap(ErrMisalignedTensors, "no segments")
	}

	req := predictRequest{Instances: make([]predictInstance, len(examples))}
	for i, ex := range examples {
		if r, _ := ex.Input.Dims(); ex.Length < 0 || ex.Length > r {
			return Encoding{}, errors.Wrapf(ErrMisalignedTensors, "segment %d length %d exceeds %d steps", i, ex.Length, r)
		}
		if ex.Control != nil {
			if r, _ := ex.Control.Dims(); ex.Length > r {
				return Encoding{}, errors.Wrapf(ErrMisalignedTensors, "segment %d control has %d steps", i, r)
			}
		}
		inst := predictInstance{Inputs: rows(ex.Input, ex.Length), Lengths: ex.Length}
		if ex.Control != nil {
			inst.Controls = rows(ex.Control, ex.Length)
		}
		req.Instances[i] = inst
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Encoding{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return Encoding{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Debug("predict", zap.String("endpoint", e.endpoint), zap.Int("instances", len(examples)))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Encoding{}, errors.Wrap(err, "predict")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Encoding{}, errors.Wrap(err, "predict response")
	}

	var out predictResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Encoding{}, errors.Wrapf(err, "predict response (status %d)", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return Encoding{}, errors.Errorf("predict: status %d: %s", resp.StatusCode, out.Error)
	}

	if len(out.Predictions) != len(examples) {
		return Encoding{}, errors.Wrapf(ErrMisalignedTensors, "%d predictions for %d segments", len(out.Predictions), len(examples))
	}

	enc := Encoding{
		Z:     mat.NewDense(len(examples), e.zSize, nil),
		Mu:    mat.NewDense(len(examples), e.zSize, nil),
		Sigma: mat.NewDense(len(examples), e.zSize, nil),
	}
	for i, p := range out.Predictions {
		for _, part := range []struct {
			name string
			dst  *mat.Dense
			src  []float64
		}{
			{"z", enc.Z, p.Z},
			{"mu", enc.Mu, p.Mu},
			{"sigma", enc.Sigma, p.Sigma},
		} {
			if len(part.src) != e.zSize {
				return Encoding{}, errors.Wrapf(ErrMisalignedTensors, "prediction %d: %s has %d values, want %d", i, part.name, len(part.src), e.zSize)
			}
			part.dst.SetRow(i, part.src)
		}
	}

	return enc, nil
}

func rows(m *mat.Dense, n int) [][]float64 {
	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
