package opencv

import (
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"

	"github.com/eliteGoblin/kidcam/internal/domain"
)

// VideoOpener decodes gallery videos with OpenCV.
type VideoOpener struct {
	width  int
	height int
}

// NewVideoOpener creates an opener that scales frames to fit width x height.
// Zero dimensions keep the native frame size.
func NewVideoOpener(width, height int) *VideoOpener {
	return &VideoOpener{width: width, height: height}
}

func (o *VideoOpener) Open(path string) (domain.VideoStream, error) {
	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("video %s is not open", path)
	}
	return &videoStream{
		path:    path,
		capture: capture,
		frame:   gocv.NewMat(),
		scaled:  gocv.NewMat(),
		width:   o.width,
		height:  o.height,
	}, nil
}

type videoStream struct {
	path    string
	capture *gocv.VideoCapture
	frame   gocv.Mat
	scaled  gocv.Mat
	width   int
	height  int
}

func (s *videoStream) ReadFrame() (image.Image, error) {
	if ok := s.capture.Read(&s.frame); !ok || s.frame.Empty() {
		pos := s.capture.Get(gocv.VideoCapturePosFrames)
		count := s.capture.Get(gocv.VideoCaptureFrameCount)
		if endOfStream(pos, count) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decode %s at frame %v of %v", s.path, pos, count)
	}
	if s.width <= 0 || s.height <= 0 {
		return s.frame.ToImage()
	}

	w, h := fit(s.frame.Cols(), s.frame.Rows(), s.width, s.height)
	gocv.Resize(s.frame, &s.scaled, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	return s.scaled.ToImage()
}

func (s *videoStream) Rewind() error {
	s.capture.Set(gocv.VideoCapturePosFrames, 0)
	if pos := s.capture.Get(gocv.VideoCapturePosFrames); pos != 0 {
		return fmt.Errorf("rewind %s: position still %v", s.path, pos)
	}
	return nil
}

func (s *videoStream) FPS() float64 {
	return s.capture.Get(gocv.VideoCaptureFPS)
}

func (s *videoStream) Close() error {
	s.frame.Close()
	s.scaled.Close()
	return s.capture.Close()
}

// endOfStream reports whether a failed read happened at the end of the file.
// Containers that do not report a frame count are treated as ended.
func endOfStream(pos, count float64) bool {
	return count <= 0 || pos >= count
}

// fit scales w x h to the largest size inside maxW x maxH keeping aspect.
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	if w*maxH > h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}

// Ensure VideoOpener implements domain.VideoOpener.
var _ domain.VideoOpener = (*VideoOpener)(nil)
