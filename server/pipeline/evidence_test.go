package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
	"github.com/vruscope/vruscope/pkg/nn"
	"github.com/vruscope/vruscope/server/detectdb"
	"github.com/vruscope/vruscope/server/storage"
)

func grayFrame(width, height int) *cimg.Image {
	img := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = 128
	}
	return img
}

func pixelAt(img *cimg.Image, x, y int32) [3]byte {
	p := int(y)*img.Stride + int(x)*3
	return [3]byte{img.Pixels[p], img.Pixels[p+1], img.Pixels[p+2]}
}

func TestDrawBox(t *testing.T) {
	img := grayFrame(320, 240)
	box := nn.MakeRect(100, 80, 60, 40)
	drawBox(img, box, evidenceBoxColor, evidenceBoxThickness)

	// The stroke is centered just outside the box edge, so the pixel one
	// above the top edge midpoint is fully painted
	edge := pixelAt(img, box.X+box.Width/2, box.Y-1)
	require.Greater(t, edge[0], byte(200))
	require.Less(t, edge[1], byte(100))
	require.Less(t, edge[2], byte(100))

	// The interior of the box is untouched
	center := pixelAt(img, box.X+box.Width/2, box.Y+box.Height/2)
	require.Equal(t, [3]byte{128, 128, 128}, center)

	// As is everything far from the outline
	corner := pixelAt(img, 10, 10)
	require.Equal(t, [3]byte{128, 128, 128}, corner)
}

func TestDrawBoxClipped(t *testing.T) {
	img := grayFrame(100, 100)

	// Boxes straddling, and entirely outside, the frame must not panic
	drawBox(img, nn.MakeRect(-20, -20, 50, 50), evidenceBoxColor, evidenceBoxThickness)
	drawBox(img, nn.MakeRect(80, 80, 60, 60), evidenceBoxColor, evidenceBoxThickness)
	drawBox(img, nn.MakeRect(500, 500, 40, 40), evidenceBoxColor, evidenceBoxThickness)

	edge := pixelAt(img, 15, 0)
	require.Greater(t, edge[0], byte(200))
}

func TestEvidenceCapture(t *testing.T) {
	log := logs.NewTestingLog(t)
	store, err := storage.NewStorageFS(log, filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	capturer := NewEvidenceCapturer(log, store)

	det := &detectdb.Detection{
		VideoID:      1,
		ModelVersion: "test-1",
		FrameIndex:   3,
		Class:        nn.VRUPedestrian,
		Confidence:   0.9,
	}
	det.SetBox(nn.MakeRect(100, 80, 60, 40))

	frame := grayFrame(640, 480)
	require.NoError(t, capturer.Capture(frame, det))
	require.NotNil(t, det.FramePath)
	require.NotNil(t, det.CropPath)

	for _, path := range []string{*det.FramePath, *det.CropPath} {
		data, err := storage.ReadFile(store, path)
		require.NoError(t, err)
		require.NotEmpty(t, data)
	}

	// The source frame is never modified
	require.Equal(t, [3]byte{128, 128, 128}, pixelAt(frame, 100, 80))
}
