package encoders

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	type event struct {
		RunID string `json:"run_id"`
		Sent  int    `json:"sent"`
	}

	b, err := JSON{}.Encode(event{RunID: "r1", Sent: 3})
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"r1","sent":3}`, string(b))
	assert.Equal(t, "application/json", JSON{}.ContentType())

	b, err = JSON{}.Encode(map[string]string{"error": "<a@b.c>: rejected"})
	require.NoError(t, err)
	assert.Equal(t, `{"error":"<a@b.c>: rejected"}`, string(b))

	_, err = JSON{}.Encode(math.NaN())
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		in      any
		want    string
		wantErr bool
	}{
		{name: "string", in: "Sent: 1 / 2", want: "Sent: 1 / 2"},
		{name: "bytes", in: []byte("raw"), want: "raw"},
		{name: "stringer", in: 1500 * time.Millisecond, want: "1.5s"},
		{name: "int", in: 42, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, err := Text{}.Encode(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(b))
		})
	}
}
