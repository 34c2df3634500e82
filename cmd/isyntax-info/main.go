// Command isyntax-info prints the pyramid geometry and associated-image
// byte ranges of an iSyntax file, without reconstructing any tile pixels.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/wsiviewer/isyntax-go/isyntax"
)

func main() {
	verbose := flag.Bool("v", false, "log per-image assembly diagnostics")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-v] <file.isyntax>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFor(*verbose),
	}))

	img, err := isyntax.Open(flag.Arg(0), isyntax.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, "isyntax-info:", err)
		os.Exit(1)
	}
	defer img.Close()

	printImage(img)
}

func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

func printImage(img *isyntax.Isyntax) {
	fmt.Printf("mpp: %.4f x %.4f um/px (known: %v)\n", img.MPPX, img.MPPY, img.MPPKnown)
	fmt.Printf("seektable size guessed: %v\n", img.SeektableSizeGuessed)

	if wsi, ok := img.WSIImage(); ok {
		fmt.Println("WSI:")
		fmt.Printf("  dimensions: %dx%d\n", wsi.Width, wsi.Height)
		fmt.Printf("  levels: %d\n", wsi.LevelCount)
		fmt.Printf("  tile size: %dx%d\n", img.TileWidth(), img.TileHeight())
		fmt.Printf("  codeblocks: %d, data chunks: %d\n", wsi.NumberOfBlocks, wsi.DataChunkCount)
		fmt.Printf("  compressor version: %d, header codeblocks partial: %v\n", wsi.CompressorVersion, wsi.HeaderCodeblocksArePartial)
		for _, lvl := range wsi.Levels {
			fmt.Printf("    scale %d: %dx%d px, %dx%d tiles\n", lvl.Scale, lvl.Width, lvl.Height, lvl.WidthInTiles, lvl.HeightInTiles)
		}
	} else {
		fmt.Println("WSI: absent")
	}

	printAssociated(img, "label", isyntax.ImageTypeLabel)
	printAssociated(img, "macro", isyntax.ImageTypeMacro)
}

func printAssociated(img *isyntax.Isyntax, name string, t isyntax.ImageType) {
	var present bool
	switch t {
	case isyntax.ImageTypeLabel:
		_, present = img.LabelImage()
	case isyntax.ImageTypeMacro:
		_, present = img.MacroImage()
	}
	if !present {
		fmt.Printf("%s: absent\n", name)
		return
	}
	jpeg, err := img.GetAssociatedImageJPEG(t)
	if err != nil {
		fmt.Printf("%s: present, JPEG unavailable (%v)\n", name, err)
		return
	}
	fmt.Printf("%s: present, JPEG %d bytes\n", name, len(jpeg))
}
