// Package extract turns an uploaded image into a single text string using
// Textract document text detection.
package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
)

// NoTextMarker is the content recorded when OCR recognizes nothing.
const NoTextMarker = "No text detected in the image."

// TextractAPI is the slice of the Textract client the extractor needs.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// Extractor runs OCR against objects referenced in place in S3.
type Extractor struct {
	Client TextractAPI
}

// DetectLines runs text detection on the object and joins the recognized
// lines top-to-bottom into one string. When no lines are recognized it
// returns NoTextMarker with noText=true; that is an outcome, not an error.
func (e *Extractor) DetectLines(ctx context.Context, bucket, key string) (text string, noText bool, err error) {
	out, err := e.Client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{
			S3Object: &types.S3Object{
				Bucket: &bucket,
				Name:   &key,
			},
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("detect text in %s/%s: %w", bucket, key, err)
	}

	lines := make([]types.Block, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		if b.BlockType == types.BlockTypeLine && b.Text != nil {
			lines = append(lines, b)
		}
	}
	if len(lines) == 0 {
		return NoTextMarker, true, nil
	}

	// Top of the page first. SliceStable keeps Textract's reading order for
	// lines at the same height.
	sort.SliceStable(lines, func(i, j int) bool {
		return blockTop(lines[i]) < blockTop(lines[j])
	})

	parts := make([]string, len(lines))
	for i, b := range lines {
		parts[i] = *b.Text
	}
	return strings.Join(parts, " "), false, nil
}

func blockTop(b types.Block) float32 {
	if b.Geometry == nil || b.Geometry.BoundingBox == nil {
		return 0
	}
	return b.Geometry.BoundingBox.Top
}
