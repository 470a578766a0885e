package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"gocv.io/x/gocv"
)

// DecodePhoto decodes a JPEG/PNG/GIF photo into an image.Image.
func DecodePhoto(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// EncodeJPEG encodes an image as JPEG with the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}

// CropBBox extracts a face region from img given a pixel bounding box, padded by 10% on
// each side and clamped to the image bounds. Returns nil if the box degenerates.
func CropBBox(img image.Image, x1, y1, x2, y2 float32) image.Image {
	bounds := img.Bounds()

	ix1, iy1, ix2, iy2 := int(x1), int(y1), int(x2), int(y2)

	w := ix2 - ix1
	h := iy2 - iy1
	if w <= 0 || h <= 0 {
		return nil
	}
	padW := int(float32(w) * 0.1)
	padH := int(float32(h) * 0.1)
	ix1 -= padW
	iy1 -= padH
	ix2 += padW
	iy2 += padH

	if ix1 < bounds.Min.X {
		ix1 = bounds.Min.X
	}
	if iy1 < bounds.Min.Y {
		iy1 = bounds.Min.Y
	}
	if ix2 > bounds.Max.X {
		ix2 = bounds.Max.X
	}
	if iy2 > bounds.Max.Y {
		iy2 = bounds.Max.Y
	}
	if ix2 <= ix1 || iy2 <= iy1 {
		return nil
	}

	rect := image.Rect(ix1, iy1, ix2, iy2)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}

	crop := image.NewRGBA(image.Rect(0, 0, ix2-ix1, iy2-iy1))
	for cy := iy1; cy < iy2; cy++ {
		for cx := ix1; cx < ix2; cx++ {
			crop.Set(cx-ix1, cy-iy1, img.At(cx, cy))
		}
	}
	return crop
}

// ResizeImage performs a nearest-neighbour resize to targetW x targetH.
func ResizeImage(img image.Image, targetW, targetH int) *image.RGBA {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	if srcW == 0 || srcH == 0 {
		return dst
	}
	for y := 0; y < targetH; y++ {
		srcY := bounds.Min.Y + y*srcH/targetH
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}
	return dst
}

// imageToFloat32CHW converts img to CHW float32, normalising as (pixel-mean)/std.
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := ResizeImage(img, targetW, targetH)
	data := make([]float32, 3*targetH*targetW)
	planeSize := targetH * targetW

	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			off := resized.PixOffset(x, y)
			pix := resized.Pix[off : off+3 : off+3]
			idx := y*targetW + x
			data[idx] = (float32(pix[0]) - mean[0]) / std[0]
			data[planeSize+idx] = (float32(pix[1]) - mean[1]) / std[1]
			data[2*planeSize+idx] = (float32(pix[2]) - mean[2]) / std[2]
		}
	}
	return data
}

// imageToMat converts an image.Image to a BGR gocv.Mat, the layout OpenCV expects.
func imageToMat(img image.Image) (gocv.Mat, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return gocv.Mat{}, fmt.Errorf("encode for mat conversion: %w", err)
	}
	mat, err := gocv.IMDecode(buf.Bytes(), gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("imdecode: %w", err)
	}
	return mat, nil
}

// EnhancementVariant names one of the four preprocessing passes tried when the
// plain cascade finds nothing.
type EnhancementVariant string

const (
	EnhanceNone      EnhancementVariant = "none"
	EnhanceHistEq    EnhancementVariant = "hist_eq"
	EnhanceCLAHE     EnhancementVariant = "clahe"
	EnhanceDenoise   EnhancementVariant = "denoise"
	EnhanceSharpen   EnhancementVariant = "sharpen"
)

// AllEnhancements lists the enhancement passes in the order they are tried.
var AllEnhancements = []EnhancementVariant{EnhanceHistEq, EnhanceCLAHE, EnhanceDenoise, EnhanceSharpen}

// Enhance applies one enhancement pass to img and returns the resulting image.
// Each pass round-trips through a gocv.Mat since the enhancement ops (equalizeHist,
// CLAHE, fastNlMeansDenoising, Gaussian unsharp-mask sharpening) live in OpenCV.
func Enhance(img image.Image, variant EnhancementVariant) (image.Image, error) {
	mat, err := imageToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)

	out := gocv.NewMat()
	defer out.Close()

	switch variant {
	case EnhanceHistEq:
		gocv.EqualizeHist(gray, &out)
	case EnhanceCLAHE:
		clahe := gocv.NewCLAHE()
		defer clahe.Close()
		clahe.Apply(gray, &out)
	case EnhanceDenoise:
		gocv.FastNlMeansDenoising(gray, &out)
	case EnhanceSharpen:
		blurred := gocv.NewMat()
		defer blurred.Close()
		gocv.GaussianBlur(gray, &blurred, image.Pt(0, 0), 3, 3, gocv.BorderDefault)
		gocv.AddWeighted(gray, 1.5, blurred, -0.5, 0, &out)
	default:
		out = gray.Clone()
	}

	color := gocv.NewMat()
	defer color.Close()
	gocv.CvtColor(out, &color, gocv.ColorGrayToBGR)

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, color)
	if err != nil {
		return nil, fmt.Errorf("encode enhanced mat: %w", err)
	}
	defer buf.Close()

	return DecodePhoto(buf.GetBytes())
}
