package vae

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRemoteEncoder_Encode(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/models/test:predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		var resp predictResponse
		for i := range got.Instances {
			v := float64(i)
			resp.Predictions = append(resp.Predictions, prediction{
				Z:     []float64{v, v, v},
				Mu:    []float64{v + 10, v + 10, v + 10},
				Sigma: []float64{1, 1, 1},
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	enc := NewRemoteEncoder(srv.URL+"/", testConfig(), srv.Client())
	out, err := enc.Encode(context.Background(), []Example{
		{Input: oneHot(1), Length: 4},
		{Input: oneHot(2), Length: 2},
	})
	require.NoError(t, err)

	require.Len(t, got.Instances, 2)
	assert.Equal(t, 4, got.Instances[0].Lengths)
	assert.Len(t, got.Instances[1].Inputs, 2)
	assert.Equal(t, []float64{0, 0, 1, 0}, got.Instances[1].Inputs[0])
	assert.Nil(t, got.Instances[0].Controls)

	assert.Equal(t, []float64{10, 10, 10}, out.Mu.RawRowView(0))
	assert.Equal(t, []float64{11, 11, 11}, out.Mu.RawRowView(1))
	assert.Equal(t, []float64{1, 1, 1}, out.Z.RawRowView(1))
}

func TestRemoteEncoder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"error": "model not loaded"}`, nil},
		{"not json", http.StatusOK, `<html>`, nil},
		{"short prediction", http.StatusOK, `{"predictions": [{"z": [1], "mu": [1], "sigma": [1]}]}`, ErrMisalignedTensors},
		{"missing prediction", http.StatusOK, `{"predictions": []}`, ErrMisalignedTensors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			enc := NewRemoteEncoder(srv.URL, testConfig(), nil)
			_, err := enc.Encode(context.Background(), []Example{{Input: oneHot(1), Length: 4}})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestTrainedModel_RemoteEncoder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var resp predictResponse
		for range req.Instances {
			resp.Predictions = append(resp.Predictions, prediction{
				Z: []float64{0, 0, 0}, Mu: []float64{1, 2, 3}, Sigma: []float64{1, 1, 1},
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	model := NewTrainedModel(testConfig(), NewRemoteEncoder(srv.URL, testConfig(), srv.Client()))
	out, err := model.EncodeTensors(context.Background(), []*mat.Dense{oneHot(1), oneHot(2), oneHot(3)}, []int{4, 4, 4}, nil)
	require.NoError(t, err)

	r, _ := out.Mu.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, []float64{1, 2, 3}, out.Mu.RawRowView(2))
}
