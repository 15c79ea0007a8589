package relay_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gregoryjjb/pinrelay/relay"
)

func TestDecodeWriteRequest(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    relay.WriteRequest
		wantErr bool
	}{
		{name: "high", in: `{"pin":12,"value":1}`, want: relay.WriteRequest{Pin: 12, Value: 1}},
		{name: "low", in: `{"pin":0,"value":0}`, want: relay.WriteRequest{Pin: 0, Value: 0}},
		{name: "extra fields ignored", in: `{"pin":7,"value":1,"x":"y"}`, want: relay.WriteRequest{Pin: 7, Value: 1}},
		{name: "string pin", in: `{"pin":"12","value":1}`, wantErr: true},
		{name: "fractional value", in: `{"pin":12,"value":0.5}`, wantErr: true},
		{name: "missing pin", in: `{"value":1}`, wantErr: true},
		{name: "missing value", in: `{"pin":12}`, wantErr: true},
		{name: "value out of range", in: `{"pin":12,"value":2}`, wantErr: true},
		{name: "negative pin", in: `{"pin":-1,"value":1}`, wantErr: true},
		{name: "not an object", in: `[1,2]`, wantErr: true},
		{name: "null", in: `null`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := relay.DecodeWriteRequest(json.RawMessage(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, relay.ErrMalformed))
				assert.Equal(t, relay.KindMalformed, relay.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMalformedResultEchoesRequest(t *testing.T) {
	raw := json.RawMessage(`{"pin":"twelve","value":1}`)
	req, err := relay.DecodeWriteRequest(raw)
	require.Error(t, err)

	res := relay.MalformedResult(req, raw, err)
	assert.Equal(t, relay.EventErr, res.Event())
	assert.Equal(t, relay.KindMalformed, res.Kind)
	assert.NotEmpty(t, res.Message)
	assert.JSONEq(t, string(raw), string(res.Request))

	res = relay.MalformedResult(req, json.RawMessage(`{nope`), err)
	assert.Nil(t, res.Request)
}

func TestWriteResultJSON(t *testing.T) {
	ok, err := json.Marshal(relay.WriteResult{Pin: 12, Value: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pin":12,"value":1}`, string(ok))

	failed, err := json.Marshal(relay.WriteResult{Pin: 99, Value: 1, Message: "busy", Kind: relay.KindAcquire})
	require.NoError(t, err)
	assert.JSONEq(t, `{"pin":99,"value":1,"message":"busy","kind":"acquire"}`, string(failed))
}
