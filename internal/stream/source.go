package stream

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Frame is one decoded video frame.
type Frame interface {
	// EncodeJPEG compresses the frame at call time. Safe for concurrent
	// callers as long as nobody closes the frame underneath them.
	EncodeJPEG() ([]byte, error)
	Close()
}

// Source is an open video stream delivering frames.
type Source interface {
	Read() (Frame, error)
	Close()
}

// SourceOpener opens a video source for a URL. Workers call it again after
// every read failure.
type SourceOpener func(url string) (Source, error)

// OpenVideoSource opens an RTSP/video URL through OpenCV.
func OpenVideoSource(url string) (Source, error) {
	capture, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %s: %w", url, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("video source %s did not open", url)
	}
	return &videoSource{capture: capture}, nil
}

type videoSource struct {
	capture *gocv.VideoCapture
}

func (v *videoSource) Read() (Frame, error) {
	img := gocv.NewMat()
	if ok := v.capture.Read(&img); !ok || img.Empty() {
		img.Close()
		return nil, fmt.Errorf("failed to read frame")
	}
	return &matFrame{mat: img}, nil
}

func (v *videoSource) Close() {
	v.capture.Close()
}

type matFrame struct {
	mat gocv.Mat
}

func (f *matFrame) EncodeJPEG() ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, f.mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	return data, nil
}

func (f *matFrame) Close() {
	f.mat.Close()
}
