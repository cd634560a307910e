package nn

import (
	"github.com/bmharper/tiledinference"
)

// Run tiled inference on the image.
// We look at the width and height of the model, and if the image is larger, then we split the image
// up into tiles, and run each of those tiles through the model. Then, we merge the tiles back
// into a single dataset.
// If the model is larger than the image, then we just run the model directly, so it is safe
// to call TiledInference on any image, without incurring any performance loss.
func TiledInference(model ObjectDetector, img ImageCrop, _params *DetectionParams, nThreads int) ([]RawDetection, error) {
	config := model.Config()

	// Clip late, after merging, so that boxes which straddle a tile boundary
	// can be merged before we cut them down to the image.
	params := *_params
	params.Unclipped = true

	minPadding := 32

	allObjects := []RawDetection{}
	allBoxes := []tiledinference.Box{}

	tiling := tiledinference.MakeTiling(img.CropWidth, img.CropHeight, config.Width, config.Height, minPadding)

	tileQueue := make(chan tile, tiling.NumX*tiling.NumY)
	allTiles(tiling, tileQueue)

	if nThreads < 1 {
		nThreads = 1
	}

	type tileResult struct {
		objects []RawDetection
		boxes   []tiledinference.Box
		err     error
		done    bool
	}
	resultQueue := make(chan tileResult, tiling.NumX*tiling.NumY+nThreads)
	detectionThread := func() {
		for {
			select {
			case tile := <-tileQueue:
				objects, boxes, err := detectTile(model, &params, tiling, tile.x, tile.y, img)
				resultQueue <- tileResult{objects: objects, boxes: boxes, err: err}
				if err != nil {
					resultQueue <- tileResult{done: true}
					return
				}
			default:
				resultQueue <- tileResult{done: true}
				return
			}
		}
	}

	for i := 0; i < nThreads; i++ {
		go detectionThread()
	}
	var firstError error
	for nDone := 0; nDone < nThreads; {
		r := <-resultQueue
		if r.done {
			nDone++
			continue
		}
		if r.err != nil {
			if firstError == nil {
				firstError = r.err
			}
			continue
		}
		allObjects = append(allObjects, r.objects...)
		allBoxes = append(allBoxes, r.boxes...)
	}
	if firstError != nil {
		return nil, firstError
	}

	merged := []RawDetection{}

	finalClip := Rect{
		X:      0,
		Y:      0,
		Width:  int32(img.CropWidth),
		Height: int32(img.CropHeight),
	}

	if tiling.IsSingle() {
		merged = allObjects

		// We disabled clipping for tiling sake, so we need to clip now
		for i := range merged {
			merged[i].Box = merged[i].Box.Intersection(finalClip)
		}
	} else {
		groups, mergedBoxes := tiledinference.MergeBoxes(tiling, allBoxes, nil)
		for igroup, group := range groups {
			// Start with the first object in the group
			newObj := allObjects[group[0]]
			r := mergedBoxes[igroup]

			// Use the merged box, which can be larger than the first object in the group
			newObj.Box = Rect{X: int32(r.Rect.X1), Y: int32(r.Rect.Y1), Width: int32(r.Rect.Width()), Height: int32(r.Rect.Height())}

			// Clip at the very end, since we disable clipping inside the NN model
			newObj.Box = newObj.Box.Intersection(finalClip)

			// Use max(confidence) from all objects in the group
			for _, el := range group[1:] {
				newObj.Confidence = max(newObj.Confidence, allObjects[el].Confidence)
			}

			merged = append(merged, newObj)
		}
	}

	return merged, nil
}

// Returns two parallel arrays
func detectTile(model ObjectDetector, params *DetectionParams, tiling tiledinference.Tiling, tx, ty int, img ImageCrop) ([]RawDetection, []tiledinference.Box, error) {
	tileRect := tiling.TileRect(tx, ty)
	crop := img.Crop(int(tileRect.X1), int(tileRect.Y1), int(tileRect.X2), int(tileRect.Y2))
	objects, err := model.DetectObjects(crop, params)
	if err != nil {
		return nil, nil, err
	}
	boxes := []tiledinference.Box{}
	for i, obj := range objects {
		box := tiledinference.Box{
			Rect: tiledinference.Rect{
				X1: obj.Box.X,
				Y1: obj.Box.Y,
				X2: obj.Box.X2(),
				Y2: obj.Box.Y2(),
			},
			Class: int32(obj.Class),
			Tile:  tiling.MakeTileIndex(tx, ty),
		}
		box.Rect.Offset(tileRect.X1, tileRect.Y1)
		objects[i].Box.Offset(tileRect.X1, tileRect.Y1)
		boxes = append(boxes, box)
	}
	return objects, boxes, nil
}

type tile struct {
	x int
	y int
}

func allTiles(tiling tiledinference.Tiling, ch chan tile) {
	for ty := 0; ty < tiling.NumY; ty++ {
		for tx := 0; tx < tiling.NumX; tx++ {
			ch <- tile{x: tx, y: ty}
		}
	}
}
