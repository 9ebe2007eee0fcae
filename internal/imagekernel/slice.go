package imagekernel

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
)

// Tile is one PNG-encoded output of Slice, always tile_size x tile_size,
// 4-channel.
type Tile struct {
	PNG    []byte
	Row    int
	Col    int
	Width  int
	Height int
}

// Slice decodes data, composes it onto a padded canvas sized
// tileSize*grid.Cols x tileSize*grid.Rows, and crops the canvas into
// grid.Rows*grid.Cols tiles in row-major order.
//
// Padding exists only as a single transparent frame around the outer
// border of the composed canvas; there is no gap between adjacent tiles.
func Slice(data []byte, grid GridOption, paddingLevel, tileSize int) ([]Tile, error) {
	if grid.Rows < 1 || grid.Cols < 1 {
		return nil, fmt.Errorf("imagekernel: slice: invalid grid %+v", grid)
	}
	if tileSize < 1 {
		return nil, fmt.Errorf("imagekernel: slice: invalid tile_size %d", tileSize)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagekernel: slice: decode: %w", err)
	}

	canvasW := tileSize * grid.Cols
	canvasH := tileSize * grid.Rows
	paddingPx := PaddingPx(paddingLevel, tileSize)

	availableW := canvasW - 2*paddingPx
	availableH := canvasH - 2*paddingPx
	if availableW < 1 {
		availableW = 1
	}
	if availableH < 1 {
		availableH = 1
	}

	srcBounds := src.Bounds()
	srcW, srcH := srcBounds.Dx(), srcBounds.Dy()
	scaledW, scaledH := fitDimensions(srcW, srcH, availableW, availableH)

	scaled := imaging.Resize(src, scaledW, scaledH, imaging.Lanczos)

	canvas := imaging.New(canvasW, canvasH, color.NRGBA{0, 0, 0, 0})
	offsetX := paddingPx + (availableW-scaledW)/2
	offsetY := paddingPx + (availableH-scaledH)/2
	canvas = imaging.Paste(canvas, scaled, image.Pt(offsetX, offsetY))

	tiles := make([]Tile, 0, grid.Rows*grid.Cols)
	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			rect := image.Rect(col*tileSize, row*tileSize, (col+1)*tileSize, (row+1)*tileSize)
			cropped := imaging.Crop(canvas, rect)

			var buf bytes.Buffer
			encoder := png.Encoder{CompressionLevel: png.BestCompression}
			if err := encoder.Encode(&buf, cropped); err != nil {
				return nil, fmt.Errorf("imagekernel: slice: encode tile (%d,%d): %w", row, col, err)
			}
			tiles = append(tiles, Tile{
				PNG:    buf.Bytes(),
				Row:    row,
				Col:    col,
				Width:  tileSize,
				Height: tileSize,
			})
		}
	}
	return tiles, nil
}

// fitDimensions scales (srcW, srcH) to fit inside (maxW, maxH) preserving
// aspect ratio, rounding to the nearest pixel and never collapsing to zero.
func fitDimensions(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return maxW, maxH
	}
	scaleW := float64(maxW) / float64(srcW)
	scaleH := float64(maxH) / float64(srcH)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	w := int(float64(srcW)*scale + 0.5)
	h := int(float64(srcH)*scale + 0.5)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
