//go:build opencv

package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"github.com/okian/platecount/internal/domain/enhance"
	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/pkg/logger"
	"github.com/okian/platecount/pkg/metrics"
)

func init() {
	RegisterBackend(newOpenCVBackend)
}

const (
	yoloInput       = 640
	ocrTargetHeight = 100
	ocrWhitelist    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	videoCodec      = "mp4v"
)

// openCVBackend detects plates with a YOLO ONNX model and reads them with
// Tesseract. The network and OCR client are not goroutine safe, so frames
// from concurrent jobs are serialized through mu.
type openCVBackend struct {
	cfg BackendConfig

	mu  sync.Mutex
	net gocv.Net
	ocr *gosseract.Client
}

func newOpenCVBackend(cfg BackendConfig) (Backend, error) {
	if cfg.ConfThreshold <= 0 {
		cfg.ConfThreshold = 0.4
	}
	if cfg.NMSThreshold <= 0 {
		cfg.NMSThreshold = 0.5
	}
	if cfg.OCRLanguage == "" {
		cfg.OCRLanguage = "eng"
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("%w: cannot load model %s", ErrDetector, cfg.ModelPath)
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(cfg.OCRLanguage); err != nil {
		net.Close()
		client.Close()
		return nil, fmt.Errorf("%w: ocr language: %w", ErrDetector, err)
	}
	_ = client.SetWhitelist(ocrWhitelist)
	_ = client.SetPageSegMode(gosseract.PSM_SINGLE_LINE)

	return &openCVBackend{cfg: cfg, net: net, ocr: client}, nil
}

func (b *openCVBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.net.Close()
	return b.ocr.Close()
}

func (b *openCVBackend) OpenVideo(_ context.Context, req Request) (model.Source, error) {
	vc, err := gocv.VideoCaptureFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, req.Name, err)
	}
	return b.newCaptureSource(vc, req, model.KindVideo)
}

func (b *openCVBackend) OpenStream(_ context.Context, req Request) (model.Source, error) {
	vc, err := gocv.OpenVideoCapture(req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: stream %s: %w", ErrDecode, req.URL, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: could not open stream %s", ErrDecode, req.URL)
	}
	return b.newCaptureSource(vc, req, model.KindStream)
}

func (b *openCVBackend) newCaptureSource(vc *gocv.VideoCapture, req Request, kind model.SourceKind) (model.Source, error) {
	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = DefaultFPS
	}
	w := int(vc.Get(gocv.VideoCaptureFrameWidth))
	h := int(vc.Get(gocv.VideoCaptureFrameHeight))

	out := req.OutputName()
	writer, err := gocv.VideoWriterFile(filepath.Join(b.cfg.OutputDir, out), videoCodec, fps, w, h, true)
	if err != nil {
		vc.Close()
		return nil, fmt.Errorf("create annotated video: %w", err)
	}
	return &captureSource{
		backend: b,
		req:     req,
		kind:    kind,
		vc:      vc,
		writer:  writer,
		fps:     fps,
		frame:   gocv.NewMat(),
		out:     out,
	}, nil
}

func (b *openCVBackend) OpenImage(_ context.Context, req Request) (model.Source, error) {
	img := gocv.IMRead(req.Path, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrDecode, req.Name)
	}
	return &matImageSource{backend: b, req: req, img: img}, nil
}

// process enhances frame in place and returns its condition and detections.
func (b *openCVBackend) process(frame *gocv.Mat) (model.Condition, []model.Detection) {
	condition := b.enhance(frame)

	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	dets := b.detect(*frame)
	metrics.RecordDetectionLatency(float64(time.Since(start).Milliseconds()))
	return condition, dets
}

func (b *openCVBackend) enhance(frame *gocv.Mat) model.Condition {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)

	mean, std := gocv.NewMat(), gocv.NewMat()
	defer mean.Close()
	defer std.Close()
	gocv.MeanStdDev(gray, &mean, &std)
	stats := enhance.Stats{Brightness: mean.GetDoubleAt(0, 0), Contrast: std.GetDoubleAt(0, 0)}

	condition := enhance.Classify(stats)
	switch condition {
	case model.Lowlight:
		enhanceLowlight(frame, stats.Brightness)
	case model.Foggy:
		enhanceFog(frame)
	case model.Rainy:
		enhanceRain(frame)
	}
	return condition
}

// enhanceLowlight brightens by 1.5 and then stretches contrast by 1.3 around
// the brightened mean.
func enhanceLowlight(frame *gocv.Mat, mean float64) {
	bright := gocv.NewMat()
	defer bright.Close()
	frame.ConvertToWithParams(&bright, frame.Type(), 1.5, 0)

	m := mean * 1.5
	bright.ConvertToWithParams(frame, frame.Type(), 1.3, float32(m*(1-1.3)))
}

func enhanceFog(frame *gocv.Mat) {
	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(*frame, &lab, gocv.ColorBGRToLab)

	channels := gocv.Split(lab)
	defer func() {
		for _, c := range channels {
			c.Close()
		}
	}()

	clahe := gocv.NewCLAHEWithParams(3.0, image.Pt(8, 8))
	defer clahe.Close()
	l := gocv.NewMat()
	defer l.Close()
	clahe.Apply(channels[0], &l)
	l.CopyTo(&channels[0])

	gocv.Merge(channels, &lab)
	gocv.CvtColor(lab, frame, gocv.ColorLabToBGR)
}

func enhanceRain(frame *gocv.Mat) {
	filtered := gocv.NewMat()
	defer filtered.Close()
	gocv.BilateralFilter(*frame, &filtered, 9, 75, 75)

	kernel := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	defer kernel.Close()
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			kernel.SetFloatAt(y, x, -1)
		}
	}
	kernel.SetFloatAt(1, 1, 9)

	sharpened := gocv.NewMat()
	defer sharpened.Close()
	gocv.Filter2D(filtered, &sharpened, -1, kernel, image.Pt(-1, -1), 0, gocv.BorderDefault)

	gocv.AddWeighted(filtered, 0.7, sharpened, 0.3, 0, frame)
}

// detect must be called with b.mu held.
func (b *openCVBackend) detect(frame gocv.Mat) []model.Detection {
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(yoloInput, yoloInput), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	b.net.SetInput(blob, "")
	prob := b.net.Forward("")
	defer prob.Close()

	boxes, scores := yoloBoxes(prob, frame.Cols(), frame.Rows(), b.cfg.ConfThreshold)
	if len(boxes) == 0 {
		return nil
	}

	var dets []model.Detection
	for _, idx := range gocv.NMSBoxes(boxes, scores, b.cfg.ConfThreshold, b.cfg.NMSThreshold) {
		box := boxes[idx].Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
		if box.Empty() {
			continue
		}
		crop := frame.Region(box)
		text := b.recognize(crop)
		crop.Close()
		dets = append(dets, model.Detection{X1: box.Min.X, Y1: box.Min.Y, X2: box.Max.X, Y2: box.Max.Y, Text: text})
	}
	return dets
}

// yoloBoxes decodes a single-class YOLOv8 output of shape [1, 4+n, anchors].
func yoloBoxes(prob gocv.Mat, cols, rows int, conf float32) ([]image.Rectangle, []float32) {
	sizes := prob.Size()
	if len(sizes) != 3 || sizes[1] < 5 {
		return nil, nil
	}
	attrs, anchors := sizes[1], sizes[2]
	flat := prob.Reshape(1, attrs)
	defer flat.Close()
	rowsMat := gocv.NewMat()
	defer rowsMat.Close()
	gocv.Transpose(flat, &rowsMat)

	sx := float32(cols) / yoloInput
	sy := float32(rows) / yoloInput

	var boxes []image.Rectangle
	var scores []float32
	for i := 0; i < anchors; i++ {
		score := float32(0)
		for c := 4; c < attrs; c++ {
			if s := rowsMat.GetFloatAt(i, c); s > score {
				score = s
			}
		}
		if score < conf {
			continue
		}
		cx, cy := rowsMat.GetFloatAt(i, 0), rowsMat.GetFloatAt(i, 1)
		w, h := rowsMat.GetFloatAt(i, 2), rowsMat.GetFloatAt(i, 3)
		x1 := int((cx - w/2) * sx)
		y1 := int((cy - h/2) * sy)
		boxes = append(boxes, image.Rect(x1, y1, x1+int(w*sx), y1+int(h*sy)))
		scores = append(scores, score)
	}
	return boxes, scores
}

// recognize must be called with b.mu held.
func (b *openCVBackend) recognize(plate gocv.Mat) string {
	if plate.Empty() {
		return CleanText("")
	}
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(plate, &gray, gocv.ColorBGRToGray)

	resized := gocv.NewMat()
	defer resized.Close()
	width := int(float64(ocrTargetHeight) * float64(gray.Cols()) / float64(gray.Rows()))
	gocv.Resize(gray, &resized, image.Pt(max(1, width), ocrTargetHeight), 0, 0, gocv.InterpolationLinear)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.AdaptiveThreshold(resized, &thresh, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, 11, 2)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, thresh)
	if err != nil {
		return CleanText("")
	}
	defer buf.Close()

	if err := b.ocr.SetImageFromBytes(buf.GetBytes()); err != nil {
		return CleanText("")
	}
	text, err := b.ocr.Text()
	if err != nil {
		return CleanText("")
	}
	return CleanText(strings.Join(strings.Fields(text), ""))
}

func annotateMat(frame *gocv.Mat, dets []model.Detection, condition model.Condition) {
	green := color.RGBA{G: 255, A: 255}
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	yellow := color.RGBA{R: 255, G: 255, A: 255}
	for _, d := range dets {
		gocv.Rectangle(frame, image.Rect(d.X1, d.Y1, d.X2, d.Y2), green, 2)
		gocv.PutText(frame, d.Text, image.Pt(d.X1, d.Y1-10), gocv.FontHersheySimplex, 0.8, white, 2)
	}
	gocv.PutText(frame, string(condition), image.Pt(10, 30), gocv.FontHersheySimplex, 1.0, yellow, 2)
}

// captureSource reads a video file or a stream frame by frame and writes an
// annotated copy.
type captureSource struct {
	backend *openCVBackend
	req     Request
	kind    model.SourceKind
	vc      *gocv.VideoCapture
	writer  *gocv.VideoWriter
	fps     float64
	frame   gocv.Mat
	index   int
	out     string
	closed  bool
}

func (s *captureSource) Kind() model.SourceKind { return s.kind }
func (s *captureSource) Name() string           { return s.req.Name }

func (s *captureSource) Artifacts() model.Artifacts {
	return model.Artifacts{Video: s.out}
}

func (s *captureSource) Next(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	if ok := s.vc.Read(&s.frame); !ok || s.frame.Empty() {
		return model.Frame{}, io.EOF
	}

	ts := FormatTimestamp(s.index, s.fps)
	condition, dets := s.backend.process(&s.frame)
	annotateMat(&s.frame, dets, condition)
	if err := s.writer.Write(s.frame); err != nil {
		return model.Frame{}, fmt.Errorf("write annotated frame: %w", err)
	}

	f := model.Frame{Index: s.index, Timestamp: ts, Condition: condition, Detections: dets}
	s.index++
	return f, nil
}

func (s *captureSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.frame.Close()
	werr := s.writer.Close()
	if err := s.vc.Close(); err != nil {
		return err
	}
	if werr == nil {
		metrics.RecordOutputFile(string(s.kind))
	}
	return werr
}

// matImageSource processes one still image read by OpenCV.
type matImageSource struct {
	backend   *openCVBackend
	req       Request
	img       gocv.Mat
	done      bool
	artifacts model.Artifacts
}

func (s *matImageSource) Kind() model.SourceKind     { return model.KindImage }
func (s *matImageSource) Name() string               { return s.req.Name }
func (s *matImageSource) Artifacts() model.Artifacts { return s.artifacts }
func (s *matImageSource) Close() error               { return s.img.Close() }

func (s *matImageSource) Next(_ context.Context) (model.Frame, error) {
	if s.done {
		return model.Frame{}, io.EOF
	}
	s.done = true

	condition, dets := s.backend.process(&s.img)
	annotateMat(&s.img, dets, condition)

	out := s.req.OutputName()
	if gocv.IMWrite(filepath.Join(s.backend.cfg.OutputDir, out), s.img) {
		metrics.RecordOutputFile(string(model.KindImage))
		s.artifacts.Image = out
		if img, err := s.img.ToImage(); err == nil {
			if preview, err := PreviewDataURL(img); err == nil {
				s.artifacts.Preview = preview
			}
		}
	} else if s.backend.cfg.Logger != nil {
		s.backend.cfg.Logger.Warn(context.Background(), "annotated image not written", logger.String("file", out))
	}

	return model.Frame{
		Timestamp:  ImagePrefix + s.req.Name,
		Condition:  condition,
		Detections: dets,
	}, nil
}
