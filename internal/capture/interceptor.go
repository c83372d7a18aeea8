package capture

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"gatecap/internal/spoof"
)

// Interceptor owns the page's Fetch domain. CDP allows one Fetch.enable
// per session, so header injection (request stage) and download
// interception (response stage) share this single interceptor instead
// of fighting over the domain.
type Interceptor struct {
	page   *rod.Page
	data   *ResourceData
	log    *zap.Logger
	outDir string

	// headersFor merges spoofed headers over the native request set.
	headersFor func(spoof.RequestInfo) map[string]string
}

func NewInterceptor(page *rod.Page, data *ResourceData, log *zap.Logger, outDir string, headersFor func(spoof.RequestInfo) map[string]string) *Interceptor {
	if headersFor == nil {
		headersFor = func(req spoof.RequestInfo) map[string]string { return req.Headers }
	}
	return &Interceptor{page: page, data: data, log: log, outDir: outDir, headersFor: headersFor}
}

// Enable turns on both interception stages and starts the event pump.
func (i *Interceptor) Enable() error {
	err := proto.FetchEnable{
		Patterns: []*proto.FetchRequestPattern{
			{URLPattern: "*", RequestStage: proto.FetchRequestStageRequest},
			{URLPattern: "*", RequestStage: proto.FetchRequestStageResponse},
		},
	}.Call(i.page)
	if err != nil {
		return err
	}

	go i.page.EachEvent(func(e *proto.FetchRequestPaused) {
		if e.ResponseStatusCode == nil && e.ResponseErrorReason == "" {
			i.onRequest(e)
		} else {
			i.onResponse(e)
		}
	})()
	return nil
}

// onRequest overlays the spoofed headers and records the request
// exactly as it leaves.
func (i *Interceptor) onRequest(e *proto.FetchRequestPaused) {
	native := make(map[string]string, len(e.Request.Headers))
	for k, v := range e.Request.Headers {
		native[k] = v.Str()
	}
	merged := i.headersFor(spoof.RequestInfo{
		URL:     e.Request.URL,
		Method:  e.Request.Method,
		Headers: native,
	})
	var body []byte
	for _, entry := range e.Request.PostDataEntries {
		body = append(body, entry.Bytes...)
	}
	i.data.RecordRequest(e.Request.URL, RequestRecord{
		Method:  e.Request.Method,
		Headers: merged,
		Body:    string(body),
	})

	entries := make([]*proto.FetchHeaderEntry, 0, len(merged))
	for k, v := range merged {
		entries = append(entries, &proto.FetchHeaderEntry{Name: k, Value: v})
	}
	err := proto.FetchContinueRequest{RequestID: e.RequestID, Headers: entries}.Call(i.page)
	if err != nil {
		i.logInterceptErr("continue request", e.Request.URL, err)
	}
}

// onResponse lets page resources pass untouched and diverts payload
// deliveries to disk before the renderer can trigger its download UI.
func (i *Interceptor) onResponse(e *proto.FetchRequestPaused) {
	headers := make(map[string]string, len(e.ResponseHeaders))
	for _, h := range e.ResponseHeaders {
		headers[h.Name] = h.Value
	}
	contentType := headerGet(headers, "content-type")
	disposition := headerGet(headers, "content-disposition")

	if !LooksLikeDownload(contentType, disposition) {
		if err := (proto.FetchContinueResponse{RequestID: e.RequestID}).Call(i.page); err != nil {
			i.logInterceptErr("continue response", e.Request.URL, err)
		}
		return
	}

	target, err := i.streamToDisk(e, contentType, disposition)
	if err != nil {
		i.logInterceptErr("download stream", e.Request.URL, err)
		// The body may be gone; let the response through untouched.
		_ = proto.FetchContinueResponse{RequestID: e.RequestID}.Call(i.page)
		return
	}

	i.data.SetFile(e.Request.URL, target)
	i.data.RecordResponse(e.Request.URL, ResponseRecord{Status: statusOf(e), Headers: headers})
	i.data.AddDownload()
	i.log.Info("[DOWNLOAD] intercepted", zap.String("url", e.Request.URL), zap.String("file", target))

	// Fulfill with an empty body so the page never sees the payload;
	// synthesize the disposition the original response lacked.
	if disposition == "" {
		headers["content-disposition"] = "attachment; filename=" + filepath.Base(target)
	}
	entries := make([]*proto.FetchHeaderEntry, 0, len(headers))
	for k, v := range headers {
		entries = append(entries, &proto.FetchHeaderEntry{Name: k, Value: v})
	}
	err = proto.FetchFulfillRequest{
		RequestID:       e.RequestID,
		ResponseCode:    statusOf(e),
		ResponseHeaders: entries,
		Body:            []byte{},
	}.Call(i.page)
	if err != nil {
		i.logInterceptErr("fulfill", e.Request.URL, err)
	}
}

func (i *Interceptor) streamToDisk(e *proto.FetchRequestPaused, contentType, disposition string) (string, error) {
	stream, err := proto.FetchTakeResponseBodyAsStream{RequestID: e.RequestID}.Call(i.page)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = proto.IOClose{Handle: stream.Stream}.Call(i.page)
	}()

	name := FilenameFor(e.Request.URL, contentType, disposition)
	target := DedupPath(filepath.Join(i.outDir, downloadsDir, name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer out.Close()

	size := replayChunkSize
	for {
		chunk, err := proto.IORead{Handle: stream.Stream, Size: &size}.Call(i.page)
		if err != nil {
			return "", err
		}
		data := []byte(chunk.Data)
		if chunk.Base64Encoded {
			data, err = base64.StdEncoding.DecodeString(chunk.Data)
			if err != nil {
				return "", err
			}
		}
		if len(data) > 0 {
			if _, err := out.Write(data); err != nil {
				return "", err
			}
		}
		if chunk.EOF {
			return target, nil
		}
	}
}

// Interception ids vanish when the renderer races us to the request;
// that is lifecycle noise, not a failure.
func (i *Interceptor) logInterceptErr(op, url string, err error) {
	if strings.Contains(err.Error(), "Invalid InterceptionId") {
		i.log.Info("[INFO] interception vanished", zap.String("op", op), zap.String("url", url))
		return
	}
	i.log.Warn("interception failed", zap.String("op", op), zap.String("url", url), zap.Error(err))
	i.data.AddWarning()
}

func statusOf(e *proto.FetchRequestPaused) int {
	if e.ResponseStatusCode != nil {
		return *e.ResponseStatusCode
	}
	return 200
}
