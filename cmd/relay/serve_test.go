package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kashguard/go-sphinx-relay/internal/config"
	"github.com/kashguard/go-sphinx-relay/internal/ldat"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponses(t *testing.T, out *bytes.Buffer) []response {
	t.Helper()
	var res []response
	dec := json.NewDecoder(out)
	for dec.More() {
		var r response
		require.NoError(t, dec.Decode(&r))
		res = append(res, r)
	}
	return res
}

func TestServeRequestsAnswersInOrder(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"id":"1","op":"echo","text":"hello"}`,
		``,
		`not json`,
		`{"id":"2","op":"fail"}`,
	}, "\n"))
	var out bytes.Buffer

	var deadlines []bool
	handle := func(ctx context.Context, req request) (interface{}, error) {
		_, ok := ctx.Deadline()
		deadlines = append(deadlines, ok)
		if req.Op == "fail" {
			return nil, errors.New("node offline")
		}
		return map[string]string{"echo": req.Text}, nil
	}

	require.NoError(t, serveRequests(context.Background(), in, &out, time.Minute, handle))

	res := decodeResponses(t, &out)
	require.Len(t, res, 3)
	assert.Equal(t, "1", res[0].ID)
	assert.Equal(t, map[string]interface{}{"echo": "hello"}, res[0].Result)
	assert.Empty(t, res[1].ID)
	assert.Contains(t, res[1].Error, "malformed request")
	assert.Equal(t, "2", res[2].ID)
	assert.Equal(t, "node offline", res[2].Error)
	assert.Equal(t, []bool{true, true}, deadlines)
}

func TestServeRequestsStopsOnCancel(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveRequests(ctx, r, io.Discard, 0, func(context.Context, request) (interface{}, error) {
			return nil, nil
		})
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("request loop did not stop")
	}
}

func TestAppHandleTokenOps(t *testing.T) {
	cfg, err := config.LoadFromPath("")
	require.NoError(t, err)
	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()
	ctx := context.Background()

	mediaID := base64.URLEncoding.EncodeToString([]byte("qwertyuiop-media-0001"))
	res, err := a.handle(ctx, request{Op: "token.build", Host: "memes.sphinx.chat", MediaID: mediaID})
	require.NoError(t, err)
	token := res.(map[string]string)["token"]
	require.NotEmpty(t, token)

	res, err = a.handle(ctx, request{Op: "token.parse", Token: token})
	require.NoError(t, err)
	parsed := res.(*ldat.Token)
	assert.Equal(t, "memes.sphinx.chat", parsed.Host)
	assert.Equal(t, mediaID, parsed.MediaID)

	_, err = a.handle(ctx, request{Op: "transfer"})
	assert.EqualError(t, err, `unknown op "transfer"`)
}
