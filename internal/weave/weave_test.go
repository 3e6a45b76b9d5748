package weave

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-sphinx-relay/internal/config"
	"github.com/kashguard/go-sphinx-relay/internal/lightning"
	"github.com/kashguard/go-sphinx-relay/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const dest = "02a0b1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1"

// MockKeysender is a mock implementation of Keysender
type MockKeysender struct {
	mock.Mock
	sent []payments.KeysendOpts
}

func (m *MockKeysender) Keysend(ctx context.Context, opts payments.KeysendOpts, owner string) (*lightning.PaymentResult, error) {
	m.sent = append(m.sent, opts)
	args := m.Called(ctx, opts, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lightning.PaymentResult), args.Error(1)
}

func (m *MockKeysender) MinAmt() int64 {
	return 3
}

type sleepRecorder struct {
	pauses []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.pauses = append(s.pauses, d)
	return nil
}

var weaveStart = time.UnixMilli(1700000000123)

func newWeaver(k Keysender) (*Weaver, *sleepRecorder) {
	w := NewWeaver(k, config.Payments{}, time2.NewMockClock(weaveStart))
	rec := &sleepRecorder{}
	w.sleep = rec.sleep
	return w, rec
}

func ok(hash string) *lightning.PaymentResult {
	return &lightning.PaymentResult{PaymentHash: hash, Status: lightning.PaymentSucceeded}
}

func TestShortPayloadIsSingleKeysend(t *testing.T) {
	k := new(MockKeysender)
	k.On("Keysend", mock.Anything, mock.Anything, "02owner").Return(ok("a"), nil).Once()
	w, rec := newWeaver(k)

	data := strings.Repeat("x", DefaultChunkSize-1)
	res, err := w.KeysendMessage(context.Background(), payments.KeysendOpts{Dest: dest, Amt: 50, Data: data}, "02owner")
	require.NoError(t, err)
	assert.Equal(t, "a", res.PaymentHash)
	require.Len(t, k.sent, 1)
	assert.Equal(t, data, k.sent[0].Data)
	assert.Equal(t, int64(50), k.sent[0].Amt)
	assert.Empty(t, rec.pauses)
}

func TestExactChunkSizeIsOneHeaderedChunk(t *testing.T) {
	k := new(MockKeysender)
	k.On("Keysend", mock.Anything, mock.Anything, "").Return(ok("a"), nil).Once()
	w, _ := newWeaver(k)

	data := strings.Repeat("y", DefaultChunkSize)
	_, err := w.KeysendMessage(context.Background(), payments.KeysendOpts{Dest: dest, Amt: 50, Data: data}, "")
	require.NoError(t, err)
	require.Len(t, k.sent, 1)
	assert.Equal(t, "1700000000123_0_1_"+data, k.sent[0].Data)
	assert.Equal(t, int64(50), k.sent[0].Amt)
}

func TestOneOverChunkSizeSplitsInTwo(t *testing.T) {
	k := new(MockKeysender)
	k.On("Keysend", mock.Anything, mock.Anything, "").Return(ok("a"), nil).Once()
	k.On("Keysend", mock.Anything, mock.Anything, "").Return(ok("b"), nil).Once()
	w, rec := newWeaver(k)

	data := strings.Repeat("z", DefaultChunkSize) + "!"
	width := (DefaultChunkSize + 2) / 2
	res, err := w.KeysendMessage(context.Background(), payments.KeysendOpts{Dest: dest, Amt: 50, Data: data}, "")
	require.NoError(t, err)
	assert.Equal(t, "b", res.PaymentHash)

	require.Len(t, k.sent, 2)
	first, okFirst := ParseChunk(k.sent[0].Data)
	second, okSecond := ParseChunk(k.sent[1].Data)
	require.True(t, okFirst)
	require.True(t, okSecond)
	assert.Equal(t, first.TS, second.TS)
	assert.Equal(t, weaveStart.UnixMilli(), first.TS)
	assert.Equal(t, []int{0, 1}, []int{first.Index, second.Index})
	assert.Equal(t, 2, first.Count)
	assert.Len(t, first.Data, width)
	assert.Len(t, second.Data, DefaultChunkSize+1-width)
	assert.Equal(t, 487, width)
	assert.Equal(t, data, first.Data+second.Data)

	assert.Equal(t, int64(3), k.sent[0].Amt)
	assert.Equal(t, int64(50), k.sent[1].Amt)
	assert.Equal(t, []time.Duration{DefaultChunkPause}, rec.pauses)
}

func TestMultipleOfChunkSize(t *testing.T) {
	for _, chunks := range []int{2, 3, 5} {
		k := new(MockKeysender)
		k.On("Keysend", mock.Anything, mock.Anything, "").Return(ok("a"), nil)
		w, rec := newWeaver(k)

		data := strings.Repeat("q", chunks*DefaultChunkSize)
		_, err := w.KeysendMessage(context.Background(), payments.KeysendOpts{Dest: dest, Amt: 9, Data: data}, "")
		require.NoError(t, err)
		assert.Len(t, k.sent, chunks)
		assert.Len(t, rec.pauses, chunks-1)

		var payloads []string
		for _, s := range k.sent {
			payloads = append(payloads, s.Data)
		}
		msgs := Regroup(payloads)
		require.Len(t, msgs, 1)
		assert.True(t, msgs[0].Complete)
		assert.Equal(t, data, msgs[0].Payload)
	}
}

func TestChunksAreEqualWidth(t *testing.T) {
	k := new(MockKeysender)
	k.On("Keysend", mock.Anything, mock.Anything, "").Return(ok("a"), nil)
	w, _ := newWeaver(k)

	data := strings.Repeat("w", 2*DefaultChunkSize+1)
	_, err := w.KeysendMessage(context.Background(), payments.KeysendOpts{Dest: dest, Amt: 9, Data: data}, "")
	require.NoError(t, err)
	require.Len(t, k.sent, 3)

	var widths []int
	for _, s := range k.sent {
		c, ok := ParseChunk(s.Data)
		require.True(t, ok)
		widths = append(widths, len(c.Data))
	}
	assert.Equal(t, []int{649, 649, 647}, widths)
}

func TestAnyChunkFailureFailsWeave(t *testing.T) {
	for failAt := 0; failAt < 3; failAt++ {
		k := new(MockKeysender)
		for i := 0; i < 3; i++ {
			if i == failAt {
				k.On("Keysend", mock.Anything, mock.Anything, "").Return(nil, errors.New("no route")).Once()
				continue
			}
			k.On("Keysend", mock.Anything, mock.Anything, "").Return(ok("a"), nil).Once()
		}
		w, rec := newWeaver(k)

		data := strings.Repeat("f", 2*DefaultChunkSize+10)
		res, err := w.KeysendMessage(context.Background(), payments.KeysendOpts{Dest: dest, Amt: 9, Data: data}, "")
		assert.Nil(t, res)
		assert.ErrorIs(t, err, lightning.ErrWeaveIncomplete, "fail at %d", failAt)
		// Failures do not abort: every chunk is still attempted.
		assert.Len(t, k.sent, 3)
		// Only successful non-final chunks pause.
		expected := 2
		if failAt < 2 {
			expected = 1
		}
		assert.Len(t, rec.pauses, expected, "fail at %d", failAt)
	}
}

func TestAllChunksFail(t *testing.T) {
	k := new(MockKeysender)
	k.On("Keysend", mock.Anything, mock.Anything, "").Return(nil, errors.New("offline"))
	w, rec := newWeaver(k)

	_, err := w.KeysendMessage(context.Background(), payments.KeysendOpts{Dest: dest, Data: strings.Repeat("e", 2000)}, "")
	assert.ErrorIs(t, err, lightning.ErrWeaveIncomplete)
	assert.Len(t, k.sent, 3)
	assert.Empty(t, rec.pauses)
}

func TestCancelledWeaveStops(t *testing.T) {
	k := new(MockKeysender)
	k.On("Keysend", mock.Anything, mock.Anything, "").Return(ok("a"), nil)
	w := NewWeaver(k, config.Payments{WeaveChunkPause: time.Hour}, time2.NewMockClock(weaveStart))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.KeysendMessage(ctx, payments.KeysendOpts{Dest: dest, Data: strings.Repeat("c", 3000)}, "")
	assert.ErrorIs(t, err, lightning.ErrWeaveIncomplete)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, k.sent, 1)
}

func TestRegroupInterleavedAndPartial(t *testing.T) {
	payloads := []string{
		Header(2, 1, 2, "world"),
		Header(1, 0, 3, "a"),
		"not a chunk",
		Header(2, 0, 2, "hello "),
		Header(1, 2, 3, "c"),
		Header(2, 0, 2, "dup"),
	}
	msgs := Regroup(payloads)
	require.Len(t, msgs, 2)

	assert.Equal(t, int64(2), msgs[0].TS)
	assert.Equal(t, "hello world", msgs[0].Payload)
	assert.True(t, msgs[0].Complete)

	assert.Equal(t, int64(1), msgs[1].TS)
	assert.Equal(t, "ac", msgs[1].Payload)
	assert.False(t, msgs[1].Complete)
}

func TestParseChunkKeepsUnderscoresInData(t *testing.T) {
	c, ok := ParseChunk(Header(5, 0, 1, "a_b_c"))
	require.True(t, ok)
	assert.Equal(t, "a_b_c", c.Data)

	_, ok = ParseChunk("5_1_1_x")
	assert.False(t, ok)
	_, ok = ParseChunk("x_0_1_y")
	assert.False(t, ok)
}
