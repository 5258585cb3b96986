package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/deckscan/carddb"
	"github.com/wudi/deckscan/imaging"
	"github.com/wudi/deckscan/job"
	"github.com/wudi/deckscan/ocr"
	"github.com/wudi/deckscan/resolve"
)

// stubEngine answers every recognition with the same canned decklist.
type stubEngine struct {
	lines []string
	conf  float64
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Recognize(_ context.Context, in ocr.Input) (ocr.Run, error) {
	run := ocr.Run{InputID: in.ID, Engine: e.Name(), Variant: in.Variant}
	for _, text := range e.lines {
		run.Lines = append(run.Lines, ocr.Line{
			Text:       text,
			Confidence: e.conf,
			Spans:      []ocr.Span{{Text: text, Confidence: e.conf}},
		})
	}
	return run, nil
}

func pngBytes(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = uint8(i) + seed
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testCorpus() *carddb.Corpus {
	c := carddb.NewCorpus()
	c.Replace([]carddb.Card{
		carddb.NewCard("id-island", "Island"),
		carddb.NewCard("id-opt", "Opt"),
		carddb.NewCard("id-negate", "Negate"),
	})
	return c
}

func newTestServer(t *testing.T, corpus *carddb.Corpus) *httptest.Server {
	t.Helper()
	engine := &stubEngine{
		lines: []string{"Deck", "4 Island", "4 Opt", "Sideboard", "2 Negate"},
		conf:  0.95,
	}
	pipeline := job.Pipeline{
		Limits:       imaging.DefaultLimits(),
		Imaging:      imaging.DefaultOptions(),
		Strategy:     ocr.NewStrategy(engine, nil, ocr.DefaultStrategyConfig(), nil),
		Resolver:     resolve.New(corpus, nil, resolve.DefaultConfig(), nil),
		AlwaysVerify: true,
	}
	mgr := job.NewManager(job.NewMemoryStore(), pipeline, job.Config{
		Workers:        2,
		QueueDepth:     8,
		JobTTL:         time.Hour,
		FingerprintTTL: time.Hour,
		JobDeadline:    5 * time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mgr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(New(mgr, corpus, 10<<20, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, srv *httptest.Server, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "deck.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/ocr/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func awaitCompleted(t *testing.T, srv *httptest.Server, jobID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := srv.Client().Get(srv.URL + "/api/ocr/status/" + jobID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var status struct {
			State string `json:"state"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false
		}
		return status.State == string(job.StateCompleted)
	}, 5*time.Second, 10*time.Millisecond, "job %s never completed", jobID)
}

func TestUploadStatusExport(t *testing.T) {
	srv := newTestServer(t, testCorpus())

	resp := upload(t, srv, pngBytes(t, 0))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var up struct {
		JobID  string `json:"job_id"`
		Cached bool   `json:"cached"`
	}
	decodeJSON(t, resp, &up)
	require.NotEmpty(t, up.JobID)
	assert.False(t, up.Cached)

	awaitCompleted(t, srv, up.JobID)

	resp, err := srv.Client().Get(srv.URL + "/api/ocr/status/" + up.JobID)
	require.NoError(t, err)
	var status struct {
		State    string `json:"state"`
		Progress int    `json:"progress"`
		Result   struct {
			Deck struct {
				Main []struct {
					Qty    int    `json:"qty"`
					Name   string `json:"name"`
					CardID string `json:"card_id"`
				} `json:"main"`
			} `json:"deck"`
			MeanConfidence float64          `json:"mean_confidence"`
			EngineRuns     int              `json:"engine_runs"`
			Timings        map[string]int64 `json:"timings_ms"`
			TraceID        string           `json:"trace_id"`
		} `json:"result"`
	}
	decodeJSON(t, resp, &status)
	assert.Equal(t, 100, status.Progress)
	require.Len(t, status.Result.Deck.Main, 2)
	assert.Equal(t, "id-island", status.Result.Deck.Main[0].CardID)
	assert.Equal(t, 1, status.Result.EngineRuns, "high confidence run should stop at the first variant")
	assert.NotEmpty(t, status.Result.Timings)
	assert.NotEmpty(t, status.Result.TraceID)

	resp, err = srv.Client().Get(fmt.Sprintf("%s/api/export/%s/moxfield", srv.URL, up.JobID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "4 Island\n4 Opt\nSB: 2 Negate", string(text))
}

func TestUploadResubmitHitsCache(t *testing.T) {
	srv := newTestServer(t, testCorpus())
	data := pngBytes(t, 7)

	var first struct {
		JobID  string `json:"job_id"`
		Cached bool   `json:"cached"`
	}
	decodeJSON(t, upload(t, srv, data), &first)

	var second struct {
		JobID  string `json:"job_id"`
		Cached bool   `json:"cached"`
	}
	decodeJSON(t, upload(t, srv, data), &second)

	assert.Equal(t, first.JobID, second.JobID)
	assert.True(t, second.Cached)
}

func TestUploadRejectsNonImage(t *testing.T) {
	srv := newTestServer(t, testCorpus())

	resp := upload(t, srv, []byte("this is not an image"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &e)
	assert.Equal(t, "BAD_IMAGE", e.Error.Code)
}

func TestUploadRequiresFileField(t *testing.T) {
	srv := newTestServer(t, testCorpus())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("image", "oops"))
	require.NoError(t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/ocr/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusUnknownJob(t *testing.T) {
	srv := newTestServer(t, testCorpus())

	resp, err := srv.Client().Get(srv.URL + "/api/ocr/status/no-such-job")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var e struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &e)
	assert.Equal(t, "JOB_NOT_FOUND", e.Error.Code)
}

func TestExportDeckBody(t *testing.T) {
	srv := newTestServer(t, testCorpus())
	payload := `{"main": [{"qty": 4, "name": "Island"}, {"qty": 4, "name": "Opt"}], "side": [{"qty": 2, "name": "Negate"}]}`

	resp, err := srv.Client().Post(srv.URL+"/api/export/mtga", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Deck\n4 Island\n4 Opt\n\nSideboard\n2 Negate", string(text))
}

func TestExportUnknownFormat(t *testing.T) {
	srv := newTestServer(t, testCorpus())

	resp, err := srv.Client().Post(srv.URL+"/api/export/cockatrice", "application/json",
		strings.NewReader(`{"main": [{"qty": 1, "name": "Opt"}]}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var e struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeJSON(t, resp, &e)
	assert.Equal(t, "EXPORT_INVALID", e.Error.Code)
}

func TestExportFormats(t *testing.T) {
	srv := newTestServer(t, testCorpus())

	resp, err := srv.Client().Get(srv.URL + "/api/export/formats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Formats []struct {
			ID string `json:"id"`
		} `json:"formats"`
	}
	decodeJSON(t, resp, &out)
	require.Len(t, out.Formats, 4)
	assert.Equal(t, "mtga", out.Formats[0].ID)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, testCorpus())

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health struct {
		Status      string `json:"status"`
		CorpusReady bool   `json:"corpus_ready"`
		CorpusCards int    `json:"corpus_cards"`
	}
	decodeJSON(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.CorpusReady)
	assert.Equal(t, 3, health.CorpusCards)
}

func TestHealthzDegradedBeforeCorpusBuild(t *testing.T) {
	srv := newTestServer(t, carddb.NewCorpus())

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(t, testCorpus())

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
