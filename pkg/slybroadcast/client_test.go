package slybroadcast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pestline/pestline/internal/resilience"
)

func testClient(url string) Client {
	return NewClient("uid-1", "secret",
		WithBaseURL(url),
		WithRateLimit(0),
		WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}),
	)
}

func TestSend_FormFields(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/vmb.php", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "uid-1", r.PostForm.Get("c_uid"))
		assert.Equal(t, "secret", r.PostForm.Get("c_password"))
		assert.Equal(t, "5551234567", r.PostForm.Get("c_phone"))
		assert.Equal(t, "greeting", r.PostForm.Get("c_record_audio"))
		assert.Equal(t, "2026-03-01 09:30:00", r.PostForm.Get("c_date"))
		assert.Equal(t, "Jane - req-1", r.PostForm.Get("c_comments"))
		assert.Empty(t, r.PostForm.Get("c_callerID"))
		w.Write([]byte("OK\nsession_id=abc123\n"))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Send(context.Background(), Drop{
		Phone:     "5551234567",
		AudioFile: "greeting",
		Date:      "2026-03-01 09:30:00",
		Comments:  "Jane - req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.SessionID)
	assert.Equal(t, "Voicemail drop queued successfully", res.Message)
}

func TestSend_JSONResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"session_id":"s-9","message":"queued"}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Send(context.Background(), Drop{Phone: "5551234567", AudioFile: "a"})
	require.NoError(t, err)
	assert.Equal(t, "s-9", res.SessionID)
	assert.Equal(t, "queued", res.Message)
}

func TestSend_Duplicate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ERROR: Duplicate request"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), Drop{Phone: "5551234567", AudioFile: "a"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestSend_UnexpectedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ERROR\nc_uid: required"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), Drop{Phone: "5551234567", AudioFile: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected response")
}

func TestSend_JSONFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"bad audio"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), Drop{Phone: "5551234567", AudioFile: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad audio")
}

func TestParseSendResponse_JSONDuplicate(t *testing.T) {
	_, err := parseSendResponse(`{"success":false,"error":"Duplicate request within 30 seconds"}`)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestSend_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("success"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), Drop{Phone: "5551234567", AudioFile: "a"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSend_PermanentStatusNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Send(context.Background(), Drop{Phone: "5551234567", AudioFile: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestSend_Validation(t *testing.T) {
	t.Parallel()

	c := NewClient("u", "p")
	_, err := c.Send(context.Background(), Drop{AudioFile: "a"})
	assert.Error(t, err)
	_, err = c.Send(context.Background(), Drop{Phone: "5551234567"})
	assert.Error(t, err)
}

func TestAudioFiles_PipeDelimited(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/vmb.aflist.php", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "get_audio_list", r.PostForm.Get("c_method"))
		w.Write([]byte("\"spring_promo\"|\"Spring Promo\"|\"2026-02-01\"\n\"plain\"||\"\"\nerror: something\n"))
	}))
	defer srv.Close()

	files, err := testClient(srv.URL).AudioFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, AudioFile{ID: "spring_promo", Name: "Spring Promo", CreatedDate: "2026-02-01"}, files[0])
	assert.Equal(t, "plain", files[1].ID)
	assert.Equal(t, "plain", files[1].Name)
}

func TestAudioFiles_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"wrapped", `{"files":[{"id":"a","name":"A"}]}`},
		{"array", `[{"id":"a","name":"A"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			files, err := testClient(srv.URL).AudioFiles(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []AudioFile{{ID: "a", Name: "A"}}, files)
		})
	}
}
