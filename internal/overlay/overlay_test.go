package overlay

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/fitcheck/internal/detector"
)

func blank(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func TestScoreTable(t *testing.T) {
	img := blank(480, 640)
	defer img.Close()

	ScoreTable(&img, Score{Exercise: "curl", Count: 7, Stage: "up", Angle: 25, Detected: true})

	px := img.GetVecbAt(70, 220)
	if px[0] != TableColor.B || px[1] != TableColor.G || px[2] != TableColor.R {
		t.Errorf("table background = %v, want BGR(%d,%d,%d)", px, TableColor.B, TableColor.G, TableColor.R)
	}

	outside := img.GetVecbAt(200, 400)
	if outside[0] != 0 || outside[1] != 0 || outside[2] != 0 {
		t.Errorf("pixel outside the table was modified: %v", outside)
	}
}

func TestSkeleton(t *testing.T) {
	img := blank(480, 640)
	defer img.Close()

	pose := detector.StandingPose()
	Skeleton(&img, pose, 0.5)

	elbow := pose.Landmarks[detector.LeftElbow]
	px := img.GetVecbAt(int(elbow.Y*480), int(elbow.X*640))
	if px[0] == 0 && px[1] == 0 && px[2] == 0 {
		t.Error("expected the left elbow to be drawn")
	}

	if nonZero(img) == 0 {
		t.Error("skeleton should draw something")
	}
}

func TestSkeleton_SkipsInvisible(t *testing.T) {
	img := blank(480, 640)
	defer img.Close()

	pose := detector.StandingPose()
	for i := range pose.Landmarks {
		pose.Landmarks[i].Visibility = 0.1
	}
	Skeleton(&img, pose, 0.5)
	Skeleton(&img, nil, 0.5)

	if nonZero(img) != 0 {
		t.Error("nothing should be drawn for invisible or missing landmarks")
	}
}

func TestCountdown(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 200, 200, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	Countdown(&img, 3)

	// The backdrop corner sits inside the blended box but away from the digits.
	size := gocv.GetTextSize("03", gocv.FontHersheySimplex, 2, 3)
	x := (640-size.X)/2 - 15
	y := (480+size.Y)/2 + 15
	px := img.GetVecbAt(y, x)
	if px[0] < 70 || px[0] > 90 {
		t.Errorf("backdrop pixel = %v, want about 80 (200 blended with black at 0.6)", px)
	}

	corner := img.GetVecbAt(5, 5)
	if corner[0] != 200 {
		t.Errorf("pixel outside the backdrop = %v, want unchanged 200", corner)
	}
}

func TestSideBySide(t *testing.T) {
	left := blank(480, 640)
	defer left.Close()
	right := blank(240, 320)
	defer right.Close()

	out := SideBySide(left, right)
	defer out.Close()
	if out.Cols() != 1280 || out.Rows() != 480 {
		t.Errorf("composite size = %dx%d, want 1280x480", out.Cols(), out.Rows())
	}

	empty := gocv.NewMat()
	defer empty.Close()
	out2 := SideBySide(left, empty)
	defer out2.Close()
	if out2.Cols() != 1280 {
		t.Errorf("composite with empty reference should still be 1280 wide, got %d", out2.Cols())
	}
}

func nonZero(img gocv.Mat) int {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return gocv.CountNonZero(gray)
}
