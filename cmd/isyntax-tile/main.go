// Command isyntax-tile reconstructs one tile or rectangular region from an
// iSyntax file and writes it out as a PNG.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/wsiviewer/isyntax-go/isyntax"
)

func main() {
	scale := flag.Int("scale", 0, "pyramid scale (0 = finest)")
	tileX := flag.Int("tile-x", -1, "tile grid X coordinate; reads a single tile")
	tileY := flag.Int("tile-y", -1, "tile grid Y coordinate; reads a single tile")
	x := flag.Int("x", 0, "region origin X, in scale pixels (region mode)")
	y := flag.Int("y", 0, "region origin Y, in scale pixels (region mode)")
	w := flag.Int("w", 0, "region width in pixels (region mode)")
	h := flag.Int("h", 0, "region height in pixels (region mode)")
	out := flag.String("out", "tile.png", "output PNG path")
	cacheSize := flag.Int("cache", 64, "tile cache capacity")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <file.isyntax>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	img, err := isyntax.Open(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "isyntax-tile:", err)
		os.Exit(1)
	}
	defer img.Close()

	cache := isyntax.NewCache(*cacheSize)
	if err := cache.Inject(img); err != nil {
		fmt.Fprintln(os.Stderr, "isyntax-tile:", err)
		os.Exit(1)
	}

	var pixels []byte
	var width, height int
	if *tileX >= 0 && *tileY >= 0 {
		width, height = img.TileWidth(), img.TileHeight()
		pixels, err = img.ReadTile(cache, *scale, *tileX, *tileY, isyntax.PixelFormatRGBA)
	} else {
		if *w <= 0 || *h <= 0 {
			fmt.Fprintln(os.Stderr, "isyntax-tile: either -tile-x/-tile-y or -w/-h must be set")
			os.Exit(2)
		}
		width, height = *w, *h
		pixels, err = img.ReadRegion(cache, *scale, *x, *y, *w, *h, isyntax.PixelFormatRGBA)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "isyntax-tile:", err)
		os.Exit(1)
	}

	if err := savePNG(pixels, width, height, *out); err != nil {
		fmt.Fprintln(os.Stderr, "isyntax-tile:", err)
		os.Exit(1)
	}
	fmt.Println("wrote", *out)
}

func savePNG(pixels []byte, width, height int, out string) error {
	rgba := &image.NRGBA{
		Pix:    pixels,
		Stride: 4 * width,
		Rect:   image.Rect(0, 0, width, height),
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	return png.Encode(f, rgba)
}
