package operations

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressZstd compresses the file in place, replacing it with a .zst
// sibling and returning the new path.
func CompressZstd(inputPath string) (string, error) {
	outputPath := inputPath + ".zst"

	inFile, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("open input file: %w", err)
	}
	defer inFile.Close()

	outFile, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()

	writer, err := zstd.NewWriter(outFile)
	if err != nil {
		return "", fmt.Errorf("create zstd writer: %w", err)
	}

	if _, err := io.Copy(writer, inFile); err != nil {
		writer.Close()
		return "", fmt.Errorf("compress file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("flush zstd writer: %w", err)
	}

	if err := os.Remove(inputPath); err != nil {
		return "", fmt.Errorf("remove original file: %w", err)
	}
	return outputPath, nil
}

// DecompressZstd is the inverse: it unpacks a .zst file in place and
// returns the path without the extension.
func DecompressZstd(inputPath string) (string, error) {
	outputPath := strings.TrimSuffix(inputPath, ".zst")
	if outputPath == inputPath {
		return "", fmt.Errorf("not a zstd archive: %q", inputPath)
	}

	inFile, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("open input file: %w", err)
	}
	defer inFile.Close()

	reader, err := zstd.NewReader(inFile)
	if err != nil {
		return "", fmt.Errorf("create zstd reader: %w", err)
	}
	defer reader.Close()

	outFile, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, reader); err != nil {
		return "", fmt.Errorf("decompress file: %w", err)
	}

	if err := os.Remove(inputPath); err != nil {
		return "", fmt.Errorf("remove compressed file: %w", err)
	}
	return outputPath, nil
}
