package main

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

func main() {
	if len(os.Args) != 2 && len(os.Args) != 5 {
		fmt.Fprint(os.Stderr, "Encode: quad-compress <input-image> [luma cb cr, each 0–255]\nDecode: quad-compress <input.quad>\n")
		os.Exit(1)
	}

	inputPath := os.Args[1]
	ext := strings.ToLower(filepath.Ext(inputPath))
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))

	// If input is .quad → decode to PNG
	if ext == ".quad" {
		if err := decodeQuad(inputPath, base+".png"); err != nil {
			fmt.Fprintln(os.Stderr, "decode error:", err)
			os.Exit(1)
		}
		fmt.Printf("Decoded %s → %s\n", inputPath, base+".png")
		return
	}

	// Otherwise: encode image → .quad with default or provided cutoffs
	cut := Cutoffs{Y: 10, Cb: 40, Cr: 40}
	if len(os.Args) == 5 {
		var vals [3]uint8
		for i, arg := range os.Args[2:5] {
			v, err := strconv.Atoi(arg)
			if err != nil || v < 0 || v > 255 {
				fmt.Fprintln(os.Stderr, "cutoffs must be integers between 0 and 255")
				os.Exit(1)
			}
			vals[i] = uint8(v)
		}
		cut = Cutoffs{Y: vals[0], Cb: vals[1], Cr: vals[2]}
	}

	outPath := base + ".quad"
	if err := encodeToQuad(inputPath, outPath, cut); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(1)
	}
	fmt.Printf("Encoded %s (cutoffs=%d/%d/%d) → %s\n", inputPath, cut.Y, cut.Cb, cut.Cr, outPath)
}

func encodeToQuad(inPath, outPath string, cut Cutoffs) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return err
	}

	payload, err := Encode(img, cut)
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	// The container itself is raw; the generic lossless pass happens here,
	// at the file boundary.
	return EncodeZstd(out, payload)
}

func decodeQuad(inPath, outPath string) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	payload, err := DecodeZstd(in)
	if err != nil {
		return err
	}

	dec, err := Decode(payload)
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return png.Encode(out, dec)
}
