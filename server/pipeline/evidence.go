package pipeline

import (
	"bytes"
	"fmt"
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/fogleman/gg"
	"github.com/vruscope/vruscope/pkg/nn"
	"github.com/vruscope/vruscope/server/detectdb"
	"github.com/vruscope/vruscope/server/storage"
)

const (
	evidenceBoxThickness = 2
	evidenceCropPad      = 0.5 // fraction of box size added around the crop
	evidenceCropSize     = 256 // min dimension of the stored crop
	evidenceJpegQuality  = 90
)

// Evidence box color (red)
var evidenceBoxColor = [3]byte{255, 40, 40}

// EvidenceCapturer renders and stores the visual record of a detection:
// the full frame with the bounding box burned in, and a zoomed crop of
// the detected object.
type EvidenceCapturer struct {
	log   logs.Log
	store storage.Storage
}

func NewEvidenceCapturer(log logs.Log, store storage.Storage) *EvidenceCapturer {
	return &EvidenceCapturer{
		log:   log,
		store: store,
	}
}

// Capture writes both evidence images to blob storage and fills in the
// detection's evidence paths. The frame image is not modified.
// Blob names derive from the detection's identity hash, so a re-run
// overwrites the same blobs instead of accumulating new ones.
func (e *EvidenceCapturer) Capture(frame *cimg.Image, det *detectdb.Detection) error {
	if det.IdentityHash == "" {
		det.IdentityHash = detectdb.ComputeIdentityHash(det.VideoID, det.ModelVersion, det.FrameIndex, det.Class, det.Box())
	}
	base := fmt.Sprintf("evidence/%v/%v/%v", det.VideoID, det.ModelVersion, det.IdentityHash[:16])
	framePath := base + "-frame.jpg"
	cropPath := base + "-crop.jpg"

	annotated := cloneRGB(frame)
	drawBox(annotated, det.Box(), evidenceBoxColor, evidenceBoxThickness)
	if err := e.storeJpeg(framePath, annotated); err != nil {
		return fmt.Errorf("Failed to store frame evidence: %w", err)
	}

	crop, err := zoomCrop(frame, det.Box())
	if err != nil {
		return err
	}
	if err := e.storeJpeg(cropPath, crop); err != nil {
		return fmt.Errorf("Failed to store crop evidence: %w", err)
	}

	det.FramePath = &framePath
	det.CropPath = &cropPath
	return nil
}

func (e *EvidenceCapturer) storeJpeg(name string, img *cimg.Image) error {
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, evidenceJpegQuality, 0))
	if err != nil {
		return err
	}
	return storage.WriteFile(e.store, name, bytes.NewReader(jpg))
}

func cloneRGB(src *cimg.Image) *cimg.Image {
	dst := cimg.NewImage(src.Width, src.Height, cimg.PixelFormatRGB)
	dst.CopyImageRect(src, 0, 0, src.Width, src.Height, 0, 0)
	return dst
}

// drawBox burns a rectangle outline into an RGB image, clipped to the
// image bounds. Only the region around the outline is converted to RGBA
// for rendering and copied back.
func drawBox(img *cimg.Image, box nn.Rect, color [3]byte, thickness int32) {
	outer := nn.MakeRect(box.X-thickness, box.Y-thickness, box.Width+2*thickness, box.Height+2*thickness)
	outer = outer.Intersection(nn.MakeRect(0, 0, int32(img.Width), int32(img.Height)))
	if outer.Width <= 0 || outer.Height <= 0 {
		return
	}

	rgba := image.NewRGBA(image.Rect(0, 0, int(outer.Width), int(outer.Height)))
	for y := 0; y < int(outer.Height); y++ {
		src := img.Pixels[(y+int(outer.Y))*img.Stride+int(outer.X)*3:]
		dst := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < int(outer.Width); x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 255
		}
	}

	dc := gg.NewContextForRGBA(rgba)
	dc.SetRGB255(int(color[0]), int(color[1]), int(color[2]))
	dc.SetLineWidth(float64(thickness))
	half := float64(thickness) / 2
	dc.DrawRectangle(
		float64(box.X-outer.X)-half,
		float64(box.Y-outer.Y)-half,
		float64(box.Width)+float64(thickness),
		float64(box.Height)+float64(thickness))
	dc.Stroke()

	for y := 0; y < int(outer.Height); y++ {
		src := rgba.Pix[y*rgba.Stride:]
		dst := img.Pixels[(y+int(outer.Y))*img.Stride+int(outer.X)*3:]
		for x := 0; x < int(outer.Width); x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
}

// zoomCrop extracts the detection box plus padding, and upscales it if
// it's smaller than our target crop size.
func zoomCrop(frame *cimg.Image, box nn.Rect) (*cimg.Image, error) {
	padX := int32(float32(box.Width) * evidenceCropPad)
	padY := int32(float32(box.Height) * evidenceCropPad)
	region := nn.MakeRect(box.X-padX, box.Y-padY, box.Width+2*padX, box.Height+2*padY)
	region = region.Intersection(nn.MakeRect(0, 0, int32(frame.Width), int32(frame.Height)))
	if region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("Detection box %v,%v %vx%v lies outside the frame", box.X, box.Y, box.Width, box.Height)
	}

	crop := cimg.NewImage(int(region.Width), int(region.Height), cimg.PixelFormatRGB)
	crop.CopyImageRect(frame, int(region.X), int(region.Y), int(region.X2()), int(region.Y2()), 0, 0)

	minDim := min(crop.Width, crop.Height)
	if minDim >= evidenceCropSize {
		return crop, nil
	}
	scale := float64(evidenceCropSize) / float64(minDim)
	outW := int(float64(crop.Width)*scale + 0.5)
	outH := int(float64(crop.Height)*scale + 0.5)
	return cimg.ResizeNew(crop, outW, outH, nil), nil
}
