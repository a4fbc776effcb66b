// Package overlay draws the rep counter's annotations onto video frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	"gocv.io/x/gocv"
	"golang.org/x/image/colornames"

	"github.com/ayusman/fitcheck/internal/detector"
)

var (
	// JointColor is used for landmark dots.
	JointColor = color.RGBA{R: 245, G: 117, B: 66, A: 255}
	// BoneColor is used for skeleton connections.
	BoneColor = color.RGBA{R: 245, G: 66, B: 230, A: 255}
	// TableColor is the score table background.
	TableColor = color.RGBA{R: 245, G: 117, B: 16, A: 255}
)

// countdownAlpha is the opacity of the countdown backdrop.
const countdownAlpha = 0.6

// Score is what the score table shows.
type Score struct {
	Exercise string
	Count    int
	Stage    string
	Angle    float64
	// Detected is false when the last frame had no usable landmarks.
	Detected bool
}

// Skeleton draws the pose connections and joints onto img. Landmarks below
// minVisibility are not drawn.
func Skeleton(img *gocv.Mat, pose *detector.Pose, minVisibility float64) {
	if pose == nil || img.Empty() {
		return
	}

	w, h := img.Cols(), img.Rows()
	pt := func(i int) image.Point {
		l := pose.Landmarks[i]
		return image.Pt(int(l.X*float64(w)), int(l.Y*float64(h)))
	}

	for _, c := range detector.Connections {
		if !pose.Visible(minVisibility, c[0], c[1]) {
			continue
		}
		gocv.Line(img, pt(c[0]), pt(c[1]), BoneColor, 2)
	}

	for i := 0; i < detector.NumLandmarks; i++ {
		if !pose.Visible(minVisibility, i) {
			continue
		}
		gocv.Circle(img, pt(i), 3, JointColor, -1)
	}
}

// JointLabel writes the angle next to landmark joint.
func JointLabel(img *gocv.Mat, pose *detector.Pose, joint int, angle float64) {
	if pose == nil || joint < 0 || joint >= detector.NumLandmarks {
		return
	}
	l := pose.Landmarks[joint]
	at := image.Pt(int(l.X*float64(img.Cols()))+8, int(l.Y*float64(img.Rows())))
	gocv.PutText(img, strconv.Itoa(int(angle+0.5)), at, gocv.FontHersheySimplex, 0.5, colornames.White, 2)
}

// ScoreTable draws the REPS / STAGE box in the top-left corner.
func ScoreTable(img *gocv.Mat, s Score) {
	gocv.Rectangle(img, image.Rect(0, 0, 225, 73), TableColor, -1)

	gocv.PutText(img, "REPS", image.Pt(15, 12), gocv.FontHersheySimplex, 0.5, colornames.Black, 1)
	gocv.PutText(img, strconv.Itoa(s.Count), image.Pt(10, 60), gocv.FontHersheySimplex, 2, colornames.White, 2)

	stage := s.Stage
	if stage == "" {
		stage = "-"
	}
	gocv.PutText(img, "STAGE", image.Pt(65, 12), gocv.FontHersheySimplex, 0.5, colornames.Black, 1)
	gocv.PutText(img, stage, image.Pt(60, 60), gocv.FontHersheySimplex, 2, colornames.White, 2)

	if s.Exercise != "" {
		gocv.PutText(img, s.Exercise, image.Pt(150, 12), gocv.FontHersheySimplex, 0.5, colornames.Black, 1)
	}
	if s.Detected {
		gocv.PutText(img, fmt.Sprintf("%.0f deg", s.Angle), image.Pt(150, 60), gocv.FontHersheySimplex, 0.5, colornames.White, 1)
	} else {
		gocv.PutText(img, "no pose", image.Pt(10, 95), gocv.FontHersheySimplex, 0.6, colornames.Red, 2)
	}
}

// Countdown blends a dark box into the centre of img and writes the remaining
// seconds on it.
func Countdown(img *gocv.Mat, secondsLeft int) {
	if img.Empty() {
		return
	}

	text := fmt.Sprintf("%02d", secondsLeft)
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 2, 3)
	x := (img.Cols() - size.X) / 2
	y := (img.Rows() + size.Y) / 2

	backdrop := img.Clone()
	defer backdrop.Close()
	gocv.Rectangle(&backdrop, image.Rect(x-20, y-size.Y-20, x+size.X+20, y+20), colornames.Black, -1)
	gocv.AddWeighted(backdrop, countdownAlpha, *img, 1-countdownAlpha, 0, img)

	gocv.PutText(img, text, image.Pt(x, y), gocv.FontHersheySimplex, 2, colornames.White, 3)
}

// Banner writes a centred one-line message, used while idle.
func Banner(img *gocv.Mat, text string) {
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, 0.8, 2)
	x := (img.Cols() - size.X) / 2
	y := img.Rows() - 30
	gocv.Rectangle(img, image.Rect(x-10, y-size.Y-10, x+size.X+10, y+10), colornames.Black, -1)
	gocv.PutText(img, text, image.Pt(x, y), gocv.FontHersheySimplex, 0.8, colornames.White, 2)
}

// Fit resizes src to width x height into dst.
func Fit(src gocv.Mat, dst *gocv.Mat, width, height int) {
	gocv.Resize(src, dst, image.Pt(width, height), 0, 0, gocv.InterpolationArea)
}

// SideBySide returns left and right joined horizontally. right is resized to
// left's size first; an empty right is replaced by a black frame. The caller
// must close the result.
func SideBySide(left, right gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	if left.Empty() {
		return out
	}

	fitted := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), left.Rows(), left.Cols(), left.Type())
	defer fitted.Close()
	if !right.Empty() {
		Fit(right, &fitted, left.Cols(), left.Rows())
	}

	gocv.Hconcat(left, fitted, &out)
	return out
}
