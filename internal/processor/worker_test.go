package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
	"resume-match-go/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memDocuments struct {
	mu          sync.Mutex
	objects     map[string][]byte
	uploads     map[string]string // key -> content type
	downloadErr error
	uploadErr   error
}

func newMemDocuments() *memDocuments {
	return &memDocuments{objects: map[string][]byte{}, uploads: map[string]string{}}
}

func (d *memDocuments) DownloadDocument(_ context.Context, key string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.downloadErr != nil {
		return nil, d.downloadErr
	}
	data, ok := d.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

func (d *memDocuments) UploadDocument(_ context.Context, id, fileName string, data []byte) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uploadErr != nil {
		return "", d.uploadErr
	}
	key := storage.DocumentObjectKey(id, fileName)
	d.objects[key] = data
	return key, nil
}

func (d *memDocuments) UploadReport(_ context.Context, key string, data []byte, contentType string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.uploadErr != nil {
		return d.uploadErr
	}
	d.objects[key] = data
	d.uploads[key] = contentType
	return nil
}

type memRecords struct {
	mu      sync.Mutex
	records []*models.AnalysisRecord
	err     error
}

func (r *memRecords) SaveAnalysis(_ context.Context, rec *models.AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for i, existing := range r.records {
		if existing.AnalysisID == rec.AnalysisID {
			r.records[i] = rec
			return nil
		}
	}
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecords) UpdateAnalysisStatus(_ context.Context, id, status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	for _, rec := range r.records {
		if rec.AnalysisID == id {
			rec.Status = status
			rec.ErrorMessage = errMsg
			return nil
		}
	}
	return storage.ErrRecordNotFound
}

type publishedMessage struct {
	exchange, key string
	result        *storage.AnalysisResultMessage
}

type memPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *memPublisher) PublishJSON(_ context.Context, exchange, key string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{exchange, key, data.(*storage.AnalysisResultMessage)})
	return nil
}

type memLocker struct {
	held     bool
	acquired []string
	released []string
}

func (l *memLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	if l.held {
		return "", nil
	}
	l.acquired = append(l.acquired, key)
	return "token", nil
}

func (l *memLocker) ReleaseLock(_ context.Context, key, _ string) (bool, error) {
	l.released = append(l.released, key)
	return true, nil
}

type stubRenderer struct {
	err error
}

func (r stubRenderer) RenderReport(_ context.Context, report types.AnalysisReport) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("docx:" + report.AnalysisID), nil
}

type workerFixture struct {
	worker    *Worker
	docs      *memDocuments
	records   *memRecords
	publisher *memPublisher
	locker    *memLocker
}

func newWorkerFixture(t *testing.T, renderer ReportRenderer) *workerFixture {
	t.Helper()
	f := &workerFixture{
		docs:      newMemDocuments(),
		records:   &memRecords{},
		publisher: &memPublisher{},
		locker:    &memLocker{},
	}
	f.docs.objects["resume/a1/original.txt"] = []byte(testResume)

	mq := config.DefaultConfig().RabbitMQ
	w, err := NewWorker(NewAnalyzer(), WorkerDeps{
		Documents: f.docs,
		Records:   f.records,
		Publisher: f.publisher,
		Locker:    f.locker,
		Renderer:  renderer,
	}, mq, zerolog.Nop())
	require.NoError(t, err)
	w.now = fixedClock()
	f.worker = w
	return f
}

func requestBody(t *testing.T, msg storage.AnalysisRequestMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func validRequest() storage.AnalysisRequestMessage {
	return storage.AnalysisRequestMessage{
		AnalysisID:      "a1",
		ResumeFileName:  "jane.txt",
		ResumeObjectKey: "resume/a1/original.txt",
		JobText:         testJob,
	}
}

func TestNewWorkerRequiresDependencies(t *testing.T) {
	_, err := NewWorker(nil, WorkerDeps{Documents: newMemDocuments()}, config.RabbitMQConfig{}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewWorker(NewAnalyzer(), WorkerDeps{}, config.RabbitMQConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestHandleMessageSuccess(t *testing.T) {
	f := newWorkerFixture(t, nil)

	ack := f.worker.HandleMessage(context.Background(), requestBody(t, validRequest()))
	assert.True(t, ack)

	report, ok := f.docs.objects["report/a1/report.json"]
	require.True(t, ok)
	assert.Equal(t, "application/json", f.docs.uploads["report/a1/report.json"])
	var decoded types.AnalysisReport
	require.NoError(t, json.Unmarshal(report, &decoded))
	assert.Equal(t, 67, decoded.Match.MatchScore)

	require.Len(t, f.records.records, 1)
	rec := f.records.records[0]
	assert.Equal(t, constants.AnalysisStatusCompleted, rec.Status)
	assert.Equal(t, storage.JobTextID(testJob), rec.JobTextID)
	assert.Equal(t, "report/a1/report.json", rec.ReportObjectKey)
	assert.Empty(t, rec.RenderedObjectKey)

	require.Len(t, f.publisher.messages, 1)
	msg := f.publisher.messages[0]
	assert.Equal(t, "resume.analysis.exchange", msg.exchange)
	assert.Equal(t, "analysis.completed", msg.key)
	assert.Equal(t, constants.AnalysisStatusCompleted, msg.result.Status)
	assert.Equal(t, 67, msg.result.MatchScore)
	assert.Equal(t, string(types.StrengthGood), msg.result.MatchStrength)
	assert.Equal(t, fixedClock()(), msg.result.CompletedAt)

	assert.Equal(t, []string{storage.AnalysisLockKey("a1")}, f.locker.acquired)
	assert.Equal(t, f.locker.acquired, f.locker.released)
}

func TestHandleMessageRendersResume(t *testing.T) {
	f := newWorkerFixture(t, stubRenderer{})
	req := validRequest()
	req.RenderResume = true

	assert.True(t, f.worker.HandleMessage(context.Background(), requestBody(t, req)))
	assert.Equal(t, []byte("docx:a1"), f.docs.objects["report/a1/resume.docx"])
	assert.Equal(t, storage.ContentTypeFor("resume.docx"), f.docs.uploads["report/a1/resume.docx"])
	require.Len(t, f.publisher.messages, 1)
	assert.Equal(t, "report/a1/resume.docx", f.publisher.messages[0].result.RenderedObjectKey)
}

func TestHandleMessageInvalidIsAcked(t *testing.T) {
	f := newWorkerFixture(t, nil)

	assert.True(t, f.worker.HandleMessage(context.Background(), []byte("{not json")))
	assert.True(t, f.worker.HandleMessage(context.Background(), requestBody(t, storage.AnalysisRequestMessage{AnalysisID: "a1"})))
	assert.Empty(t, f.records.records)
	assert.Empty(t, f.publisher.messages)
	assert.Empty(t, f.locker.acquired)
}

func TestHandleMessageSkipsWhenLocked(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.locker.held = true

	assert.True(t, f.worker.HandleMessage(context.Background(), requestBody(t, validRequest())))
	assert.Empty(t, f.records.records)
	assert.Empty(t, f.publisher.messages)
}

func TestHandleMessageRetryableFailure(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.docs.downloadErr = errors.New("connection reset by peer")

	ack := f.worker.HandleMessage(context.Background(), requestBody(t, validRequest()))
	assert.False(t, ack, "可重试的失败交给队列重新投递")

	require.Len(t, f.records.records, 1)
	assert.Equal(t, constants.AnalysisStatusFailed, f.records.records[0].Status)
	assert.Contains(t, f.records.records[0].ErrorMessage, ErrDocumentDownloadFailed.Error())

	require.Len(t, f.publisher.messages, 1)
	result := f.publisher.messages[0].result
	assert.Equal(t, constants.AnalysisStatusFailed, result.Status)
	assert.True(t, result.Retryable)
	assert.Equal(t, f.locker.acquired, f.locker.released)
}

func TestHandleMessageFailureKeepsPendingRecord(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.records.records = []*models.AnalysisRecord{{AnalysisID: "a1", ResumeFileName: "jane.txt", Status: constants.AnalysisStatusPending}}
	f.docs.downloadErr = errors.New("connection reset by peer")

	f.worker.HandleMessage(context.Background(), requestBody(t, validRequest()))
	require.Len(t, f.records.records, 1)
	assert.Equal(t, constants.AnalysisStatusFailed, f.records.records[0].Status)
	assert.Equal(t, "jane.txt", f.records.records[0].ResumeFileName)
}

func TestHandleMessagePermanentFailure(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.docs.objects["resume/a1/original.xls"] = []byte("x")
	req := validRequest()
	req.ResumeFileName = "jane.xls"
	req.ResumeObjectKey = "resume/a1/original.xls"

	assert.True(t, f.worker.HandleMessage(context.Background(), requestBody(t, req)), "不可重试的失败直接确认")
	require.Len(t, f.publisher.messages, 1)
	assert.False(t, f.publisher.messages[0].result.Retryable)
	assert.Contains(t, f.publisher.messages[0].result.Error, ErrExtractTextFailed.Error())
}

func TestProcessRenderFailure(t *testing.T) {
	f := newWorkerFixture(t, stubRenderer{err: errors.New("bad template")})
	req := validRequest()
	req.RenderResume = true

	_, err := f.worker.Process(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.False(t, IsRetryable(err))
	assert.Empty(t, f.records.records)
}

func TestProcessStorageFailuresAreRetryable(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *workerFixture)
		base  error
	}{
		{"upload", func(f *workerFixture) { f.docs.uploadErr = errors.New("minio unavailable") }, ErrStoreReportFailed},
		{"database", func(f *workerFixture) { f.records.err = errors.New("mysql gone away") }, ErrDatabaseFailed},
		{"publish", func(f *workerFixture) { f.publisher.err = errors.New("channel closed") }, ErrPublishResultFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWorkerFixture(t, nil)
			tc.setup(f)

			_, err := f.worker.Process(context.Background(), validRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.base)
			assert.True(t, IsRetryable(err))
		})
	}
}

func TestProcessWithoutOptionalDependencies(t *testing.T) {
	docs := newMemDocuments()
	docs.objects["resume/a1/original.txt"] = []byte(testResume)
	w, err := NewWorker(NewAnalyzer(), WorkerDeps{Documents: docs}, config.RabbitMQConfig{}, zerolog.Nop())
	require.NoError(t, err)

	result, err := w.Process(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "report/a1/report.json", result.ReportObjectKey)
}

type stubQueue struct {
	mu       sync.Mutex
	bodies   [][]byte
	acks     []bool
	startErr error
}

func (q *stubQueue) PublishJSON(context.Context, string, string, interface{}) error { return nil }

func (q *stubQueue) StartConsumer(ctx context.Context, _ string, _ int, handler func([]byte) bool) (<-chan struct{}, error) {
	if q.startErr != nil {
		return nil, q.startErr
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		q.mu.Lock()
		bodies := q.bodies
		q.bodies = nil
		q.mu.Unlock()
		for _, b := range bodies {
			ack := handler(b)
			q.mu.Lock()
			q.acks = append(q.acks, ack)
			q.mu.Unlock()
		}
		<-ctx.Done()
	}()
	return done, nil
}

func TestRunConsumesUntilCanceled(t *testing.T) {
	f := newWorkerFixture(t, nil)
	q := &stubQueue{bodies: [][]byte{requestBody(t, validRequest())}}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- f.worker.Run(ctx, q, "q.analysis_requests", 1, 2) }()

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.acks) == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run 没有在取消后返回")
	}
	assert.Equal(t, []bool{true}, q.acks)
}

func TestRunStartFailure(t *testing.T) {
	f := newWorkerFixture(t, nil)
	err := f.worker.Run(context.Background(), &stubQueue{startErr: errors.New("no channel")}, "q", 1, 1)
	assert.Error(t, err)
}

type memOutbox struct {
	record *models.AnalysisRecord
	event  *models.OutboxMessage
	err    error
}

func (o *memOutbox) SaveAnalysisWithEvent(_ context.Context, rec *models.AnalysisRecord, event *models.OutboxMessage) error {
	if o.err != nil {
		return o.err
	}
	o.record, o.event = rec, event
	return nil
}

func TestProcessWritesResultThroughOutbox(t *testing.T) {
	docs := newMemDocuments()
	docs.objects["resume/a1/original.txt"] = []byte(testResume)
	records, pub, box := &memRecords{}, &memPublisher{}, &memOutbox{}
	w, err := NewWorker(NewAnalyzer(), WorkerDeps{Documents: docs, Records: records, Outbox: box, Publisher: pub}, config.DefaultConfig().RabbitMQ, zerolog.Nop())
	require.NoError(t, err)
	w.now = fixedClock()

	result, err := w.Process(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Empty(t, pub.messages, "成功结果经发件箱发布")
	assert.Empty(t, records.records)
	require.NotNil(t, box.record)
	assert.Equal(t, constants.AnalysisStatusCompleted, box.record.Status)
	assert.Equal(t, "report/a1/report.json", box.record.ReportObjectKey)

	require.NotNil(t, box.event)
	assert.Equal(t, "a1", box.event.AggregateID)
	assert.Equal(t, constants.EventAnalysisCompleted, box.event.EventType)
	assert.Equal(t, "resume.analysis.exchange", box.event.TargetExchange)
	assert.Equal(t, "analysis.completed", box.event.TargetRoutingKey)
	assert.Equal(t, models.OutboxStatusPending, box.event.Status)

	var payload storage.AnalysisResultMessage
	require.NoError(t, json.Unmarshal([]byte(box.event.Payload), &payload))
	assert.Equal(t, result.MatchScore, payload.MatchScore)
	assert.Equal(t, constants.AnalysisStatusCompleted, payload.Status)
}

func TestProcessOutboxFailureIsRetryable(t *testing.T) {
	docs := newMemDocuments()
	docs.objects["resume/a1/original.txt"] = []byte(testResume)
	box := &memOutbox{err: errors.New("deadlock found")}
	w, err := NewWorker(NewAnalyzer(), WorkerDeps{Documents: docs, Outbox: box}, config.DefaultConfig().RabbitMQ, zerolog.Nop())
	require.NoError(t, err)

	_, err = w.Process(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrDatabaseFailed)
	assert.True(t, IsRetryable(err))
}
