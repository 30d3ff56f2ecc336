package scanner_test

import (
	"context"
	"errors"
	"qrscanner/internal/scanner"
	"strings"
	"sync"
	"testing"
	"time"

	mockscanner "qrscanner/internal/scanner/mock"
	mockaiextract "qrscanner/pkg/aiextract/mock"
	mockstorage "qrscanner/pkg/storage/mock"
	mockurlcheck "qrscanner/pkg/urlcheck/mock"

	"go.uber.org/mock/gomock"

	"qrscanner/pkg/aiextract"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/serrors"
	"qrscanner/pkg/storage"
	"qrscanner/pkg/urlcheck"
)

func TestMain(m *testing.M) {
	if err := logger.Setup(logger.DevelopmentEnvironment, ""); err != nil {
		panic(err)
	}

	m.Run()
}

// publisher records the events of a scan.
type publisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *publisher) Publish(_ context.Context, ev domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *publisher) progress() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []string
	for _, ev := range p.events {
		if pe, ok := ev.(domain.ProgressEvent); ok {
			out = append(out, pe.Message)
		}
	}

	return out
}

func (p *publisher) last() domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return nil
	}

	return p.events[len(p.events)-1]
}

type fixture struct {
	ctrl      *gomock.Controller
	storage   *mockstorage.MockStorage
	uploads   *mockscanner.MockUploads
	doc       *mockscanner.MockDocument
	checker   *mockurlcheck.MockChecker
	extractor *mockaiextract.MockExtractor
	publisher *publisher
	openErr   error
	scanner   scanner.Scanner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &fixture{
		ctrl:      ctrl,
		storage:   mockstorage.NewMockStorage(ctrl),
		uploads:   mockscanner.NewMockUploads(ctrl),
		doc:       mockscanner.NewMockDocument(ctrl),
		checker:   mockurlcheck.NewMockChecker(ctrl),
		extractor: mockaiextract.NewMockExtractor(ctrl),
		publisher: &publisher{},
	}
	f.scanner = scanner.New(scanner.Dependencies{
		Storage: f.storage,
		Uploads: f.uploads,
		Open: func(path string) (scanner.Document, error) {
			if f.openErr != nil {
				return nil, f.openErr
			}

			return f.doc, nil
		},
		Checker:   f.checker,
		Extractor: f.extractor,
		Publisher: f.publisher,
	}, scanner.Options{MaxAttempts: 3, Concurrency: 2, Retention: time.Hour})

	return f
}

func ok200(rawURL string) domain.QrResult {
	status := 200
	valid := true
	rt := 120.0

	return domain.QrResult{URL: rawURL, HTTPStatus: &status, DomainValid: &valid, ResponseTimeMS: &rt}
}

func TestScanner_Register(t *testing.T) {
	f := newFixture(t)
	opts := domain.ScanOptions{TimeoutSeconds: 10, ExtractText: true}

	var savedID domain.ScanID
	f.uploads.EXPECT().Save(gomock.Any(), gomock.Any(), "flyer.pdf", gomock.Any()).DoAndReturn(
		func(_ context.Context, id domain.ScanID, name string, _ any) (domain.FileInfo, error) {
			savedID = id

			return domain.FileInfo{Name: name, Path: "/uploads/" + id.String() + "/flyer.pdf", Size: 42}, nil
		},
	)
	f.storage.EXPECT().StoreScans(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, scans ...domain.Scan) ([]domain.Scan, error) {
			if len(scans) != 1 {
				t.Fatalf("expected one scan input")
			}
			if scans[0].ID != savedID {
				t.Fatalf("expected scan id %s to match the upload %s", scans[0].ID, savedID)
			}

			return scans, nil
		},
	)

	scan, err := f.scanner.Register(context.Background(), "flyer.pdf", strings.NewReader("%PDF"), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scan.Status != domain.ScanStatusPending {
		t.Fatalf("expected status PENDING, got %s", scan.Status)
	}
	if scan.File.Size != 42 || scan.Options.TimeoutSeconds != 10 {
		t.Fatalf("unexpected scan %+v", scan)
	}
}

func TestScanner_Register_RemovesUploadOnStoreError(t *testing.T) {
	f := newFixture(t)

	f.uploads.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.FileInfo{Name: "a.pdf"}, nil)
	f.storage.EXPECT().StoreScans(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
	f.uploads.EXPECT().Remove(gomock.Any(), gomock.Any())

	if _, err := f.scanner.Register(context.Background(), "a.pdf", strings.NewReader(""), domain.ScanOptions{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestScanner_Register_UploadRejected(t *testing.T) {
	f := newFixture(t)

	f.uploads.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.FileInfo{}, serrors.With(serrors.ErrUnsupportedMedia, "only PDF files are accepted"))

	_, err := f.scanner.Register(context.Background(), "a.png", strings.NewReader(""), domain.ScanOptions{})
	if !errors.Is(err, serrors.ErrUnsupportedMedia) {
		t.Fatalf("expected ErrUnsupportedMedia, got %v", err)
	}
}

func TestScanner_Start(t *testing.T) {
	id := domain.NewScanID()

	t.Run("pending scan is queued", func(t *testing.T) {
		f := newFixture(t)
		f.storage.EXPECT().ScanByID(gomock.Any(), id).Return(&domain.Scan{ID: id, Status: domain.ScanStatusPending}, nil)
		f.storage.EXPECT().AddJob(gomock.Any(), gomock.Any(), gomock.Nil()).DoAndReturn(
			func(_ context.Context, args any, _ any) (bool, error) {
				job, ok := args.(scanner.ScanPDFJob)
				if !ok || job.ScanID != id.String() {
					t.Fatalf("unexpected job args %#v", args)
				}

				return true, nil
			},
		)

		if err := f.scanner.Start(context.Background(), id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("duplicate job is not an error", func(t *testing.T) {
		f := newFixture(t)
		f.storage.EXPECT().ScanByID(gomock.Any(), id).Return(&domain.Scan{ID: id, Status: domain.ScanStatusPending}, nil)
		f.storage.EXPECT().AddJob(gomock.Any(), gomock.Any(), gomock.Nil()).Return(false, nil)

		if err := f.scanner.Start(context.Background(), id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("finished scan is ignored", func(t *testing.T) {
		f := newFixture(t)
		f.storage.EXPECT().ScanByID(gomock.Any(), id).Return(&domain.Scan{ID: id, Status: domain.ScanStatusCompleted}, nil)

		if err := f.scanner.Start(context.Background(), id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("unknown scan", func(t *testing.T) {
		f := newFixture(t)
		f.storage.EXPECT().ScanByID(gomock.Any(), id).Return(nil, nil)

		if err := f.scanner.Start(context.Background(), id); !errors.Is(err, serrors.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestScanner_Run_Completed(t *testing.T) {
	f := newFixture(t)
	id := domain.NewScanID()
	stored := &domain.Scan{
		ID:     id,
		File:   domain.FileInfo{Name: "flyer.pdf", Path: "/uploads/flyer.pdf", Size: 1024},
		Status: domain.ScanStatusRunning,
		Options: domain.ScanOptions{
			ExpectedDomains: []string{"example.com"},
			TimeoutSeconds:  5,
			ExtractText:     true,
		},
	}

	var completed storage.ScanUpdates
	f.storage.EXPECT().UpdateScanByID(gomock.Any(), id, gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, _ domain.ScanID, u storage.ScanUpdates) (*domain.Scan, error) {
			switch u.Status {
			case domain.ScanStatusRunning:
				if !u.IncrementAttempts || len(u.WhereStatus) != 2 {
					t.Fatalf("unexpected running update %+v", u)
				}

				return stored, nil
			case domain.ScanStatusCompleted:
				completed = u

				return stored, nil
			default:
				t.Fatalf("unexpected status %s", u.Status)
			}

			return nil, nil
		},
	)

	f.doc.EXPECT().PageCount().Return(2)
	f.doc.EXPECT().QRCodes(gomock.Any(), 1).Return([]string{"https://example.com/a", "WIFI:S:guest;;", "https://Example.com/a/"}, nil)
	f.doc.EXPECT().QRCodes(gomock.Any(), 2).Return(nil, nil)
	f.doc.EXPECT().Text(1).Return("Spring sale\n\n  Visit our shop  ", nil)
	f.doc.EXPECT().Close().Return(nil)
	f.checker.EXPECT().Check(gomock.Any(), gomock.Any(), urlcheck.RulesFrom(stored.Options)).Times(2).DoAndReturn(
		func(_ context.Context, rawURL string, _ urlcheck.Rules) domain.QrResult {
			return ok200(rawURL)
		},
	)
	f.extractor.EXPECT().Enabled().Return(true).AnyTimes()
	f.uploads.EXPECT().Remove(gomock.Any(), id)

	if err := f.scanner.Run(context.Background(), id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"Reading PDF: 2 pages", "Reading page 1/2", "Page 1 scanned", "Reading page 2/2", "Page 2 scanned"}
	if got := f.publisher.progress(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected progress %q", got)
	}

	done, ok := f.publisher.last().(domain.CompleteEvent)
	if !ok {
		t.Fatalf("expected a scan_complete event, got %#v", f.publisher.last())
	}
	if done.ScanID != id.String() || !done.Success {
		t.Fatalf("unexpected complete event %+v", done)
	}

	res := completed.Result
	if res == nil {
		t.Fatalf("expected results to be stored")
	}
	if res.Stats.TotalPages != 2 || res.Stats.PagesWithQR != 1 || res.Stats.UniqueURLs != 1 || res.Stats.TotalURLResults != 1 {
		t.Fatalf("unexpected stats %+v", res.Stats)
	}
	if res.URLResults[0].Page != 1 {
		t.Fatalf("expected page 1, got %d", res.URLResults[0].Page)
	}
	if len(res.ExtractedLines) != 2 || res.ExtractedLines[1].Text != "Visit our shop" {
		t.Fatalf("unexpected lines %+v", res.ExtractedLines)
	}
	if res.AIExtraction != nil {
		t.Fatalf("AI extraction was not requested")
	}
	if res.QualityScores == nil || *res.QualityScores.Overall != 83.3 {
		t.Fatalf("unexpected quality scores %+v", res.QualityScores)
	}
	if completed.LastError == nil || *completed.LastError != "" {
		t.Fatalf("expected the last error to be cleared")
	}
}

func TestScanner_Run_Failed(t *testing.T) {
	f := newFixture(t)
	id := domain.NewScanID()
	f.openErr = serrors.With(serrors.ErrBadRequest, "not a PDF")

	var failure string
	f.storage.EXPECT().UpdateScanByID(gomock.Any(), id, gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, _ domain.ScanID, u storage.ScanUpdates) (*domain.Scan, error) {
			if u.Status == domain.ScanStatusFailed {
				failure = *u.LastError
			}

			return &domain.Scan{ID: id, Status: u.Status}, nil
		},
	)
	f.uploads.EXPECT().Remove(gomock.Any(), id)

	if err := f.scanner.Run(context.Background(), id); err != nil {
		t.Fatalf("failures must not be retried, got %v", err)
	}
	if !strings.HasPrefix(failure, "Scan failed: could not open PDF") {
		t.Fatalf("unexpected stored error %q", failure)
	}

	ev, ok := f.publisher.last().(domain.ErrorEvent)
	if !ok || ev.Error != failure || ev.ScanID != id.String() {
		t.Fatalf("unexpected last event %#v", f.publisher.last())
	}
}

func TestScanner_Run_StoreFailureKeepsUploadForRetry(t *testing.T) {
	tests := []struct {
		name    string
		openErr error
		failOn  domain.ScanStatus
		wantErr string
	}{
		{name: "results", failOn: domain.ScanStatusCompleted, wantErr: "could not store scan results: db down"},
		{
			name:    "failure",
			openErr: serrors.With(serrors.ErrBadRequest, "not a PDF"),
			failOn:  domain.ScanStatusFailed,
			wantErr: "could not store scan failure: db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			id := domain.NewScanID()
			f.openErr = tt.openErr
			stored := &domain.Scan{ID: id, Status: domain.ScanStatusRunning}

			f.storage.EXPECT().UpdateScanByID(gomock.Any(), id, gomock.Any()).Times(2).DoAndReturn(
				func(_ context.Context, _ domain.ScanID, u storage.ScanUpdates) (*domain.Scan, error) {
					if u.Status == tt.failOn {
						return nil, errors.New("db down")
					}

					return stored, nil
				},
			)
			if tt.openErr == nil {
				f.doc.EXPECT().PageCount().Return(0)
				f.doc.EXPECT().Close().Return(nil)
				f.extractor.EXPECT().Enabled().Return(false).AnyTimes()
			}
			// no Remove expectation: the retry needs the document

			err := f.scanner.Run(context.Background(), id)
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("expected %q, got %v", tt.wantErr, err)
			}
			switch ev := f.publisher.last().(type) {
			case domain.ErrorEvent, domain.CompleteEvent:
				t.Fatalf("no final event may be published before it is stored, got %#v", ev)
			}
		})
	}
}

func TestScanner_Run_RateLimitedKeepsUpload(t *testing.T) {
	f := newFixture(t)
	id := domain.NewScanID()
	stored := &domain.Scan{ID: id, Status: domain.ScanStatusRunning, Options: domain.ScanOptions{AIQuery: "prices"}}

	f.storage.EXPECT().UpdateScanByID(gomock.Any(), id, gomock.Any()).Return(stored, nil)
	f.doc.EXPECT().PageCount().Return(1)
	f.doc.EXPECT().QRCodes(gomock.Any(), 1).Return(nil, nil)
	f.doc.EXPECT().Text(1).Return("Coffee 3.50 EUR", nil)
	f.doc.EXPECT().Close().Return(nil)
	f.extractor.EXPECT().Enabled().Return(true).AnyTimes()
	f.extractor.EXPECT().Extract(gomock.Any(), aiextract.Request{Text: "Coffee 3.50 EUR", Query: "prices"}).
		Return(aiextract.Result{}, serrors.With(serrors.ErrRateLimited, "quota exceeded"))

	err := f.scanner.Run(context.Background(), id)
	if !errors.Is(err, serrors.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if _, ok := f.publisher.last().(domain.ProgressEvent); !ok {
		t.Fatalf("expected a progress event, got %#v", f.publisher.last())
	}
}

func TestScanner_Run_NotRunnable(t *testing.T) {
	f := newFixture(t)
	id := domain.NewScanID()
	f.storage.EXPECT().UpdateScanByID(gomock.Any(), id, gomock.Any()).Return(nil, nil)

	if err := f.scanner.Run(context.Background(), id); !errors.Is(err, serrors.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestScanner_ScanNow(t *testing.T) {
	f := newFixture(t)
	opts := domain.ScanOptions{AIQuery: "codes", AIKeywords: []string{"code"}}

	f.uploads.EXPECT().Save(gomock.Any(), gomock.Any(), "menu.pdf", gomock.Any()).
		Return(domain.FileInfo{Name: "menu.pdf", Path: "/uploads/menu.pdf"}, nil)
	f.uploads.EXPECT().Remove(gomock.Any(), gomock.Any())
	f.doc.EXPECT().PageCount().Return(2)
	f.doc.EXPECT().QRCodes(gomock.Any(), gomock.Any()).Return(nil, nil).Times(2)
	f.doc.EXPECT().Text(1).Return("code: A1", nil)
	f.doc.EXPECT().Text(2).Return("code: B2", nil)
	f.doc.EXPECT().Close().Return(nil)
	f.extractor.EXPECT().Enabled().Return(true).AnyTimes()
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Times(2).DoAndReturn(
		func(_ context.Context, req aiextract.Request) (aiextract.Result, error) {
			code := strings.TrimPrefix(req.Text, "code: ")

			return aiextract.Result{
				Model: "test-model",
				Items: []domain.ExtractionItem{{ID: 1, Text: code, ExtractionClass: "code"}},
			}, nil
		},
	)

	res, err := f.scanner.ScanNow(context.Background(), "menu.pdf", strings.NewReader("%PDF"), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ai := res.AIExtraction
	if ai == nil || !ai.Success || ai.TotalExtractions != 2 || ai.ModelUsed != "test-model" {
		t.Fatalf("unexpected AI extraction %+v", ai)
	}
	for i, it := range ai.ExtractedData {
		page, ok := it.PageNumber()
		if it.ID != i+1 || !ok || page != i+1 {
			t.Fatalf("unexpected item %d: %+v", i, it)
		}
	}
	if res.Stats.AIExtractedItems != 2 {
		t.Fatalf("expected 2 AI items, got %d", res.Stats.AIExtractedItems)
	}
	if len(f.publisher.events) != 0 {
		t.Fatalf("synchronous scans must not publish events")
	}
}

func TestScanner_ScanNow_AIDisabled(t *testing.T) {
	f := newFixture(t)

	f.uploads.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.FileInfo{Name: "a.pdf"}, nil)
	f.uploads.EXPECT().Remove(gomock.Any(), gomock.Any())
	f.doc.EXPECT().PageCount().Return(1)
	f.doc.EXPECT().QRCodes(gomock.Any(), 1).Return(nil, nil)
	f.doc.EXPECT().Close().Return(nil)
	f.extractor.EXPECT().Enabled().Return(false).AnyTimes()

	res, err := f.scanner.ScanNow(context.Background(), "a.pdf", strings.NewReader(""), domain.ScanOptions{AIQuery: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AIExtraction == nil || res.AIExtraction.Success || !strings.Contains(res.AIExtraction.Error, "API key") {
		t.Fatalf("unexpected AI extraction %+v", res.AIExtraction)
	}
}

func TestScanner_Result(t *testing.T) {
	f := newFixture(t)
	id := domain.NewScanID()

	f.storage.EXPECT().ScanByID(gomock.Any(), id).Return(nil, nil)
	if _, err := f.scanner.Result(context.Background(), id); !errors.Is(err, serrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	f.storage.EXPECT().ScanByID(gomock.Any(), id).Return(&domain.Scan{ID: id, Status: domain.ScanStatusCompleted}, nil)
	scan, err := f.scanner.Result(context.Background(), id)
	if err != nil || scan.ID != id {
		t.Fatalf("unexpected result %+v, %v", scan, err)
	}
}

func TestScanner_Scans(t *testing.T) {
	f := newFixture(t)

	if _, _, err := f.scanner.Scans(context.Background(), "", "yesterday", 10); !errors.Is(err, serrors.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}

	cursor := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	next := cursor.Add(-time.Hour)
	f.storage.EXPECT().Scans(gomock.Any(), domain.ScanStatusFailed, cursor, uint(10)).
		Return(storage.ScanPage{Scans: []domain.Scan{{}}, NextCursor: &next}, nil)

	scans, nextCursor, err := f.scanner.Scans(context.Background(), domain.ScanStatusFailed, cursor.Format(time.RFC3339Nano), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scans) != 1 || nextCursor != next.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected page %d %q", len(scans), nextCursor)
	}
}

func TestScanner_Cleanup(t *testing.T) {
	f := newFixture(t)
	a, b := domain.NewScanID(), domain.NewScanID()

	f.storage.EXPECT().PurgeScans(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, before time.Time) ([]domain.Scan, error) {
			if d := time.Until(before); d > -59*time.Minute || d < -61*time.Minute {
				t.Fatalf("expected retention of one hour, got %s", d)
			}

			return []domain.Scan{{ID: a}, {ID: b}}, nil
		},
	)
	f.uploads.EXPECT().Remove(gomock.Any(), a)
	f.uploads.EXPECT().Remove(gomock.Any(), b)
	f.uploads.EXPECT().RemoveOlderThan(gomock.Any(), gomock.Any()).Return(1, nil)

	if err := f.scanner.Cleanup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
