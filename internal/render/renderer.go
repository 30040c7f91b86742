package render

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/certforge/certforge/internal/domain"
	"github.com/certforge/certforge/internal/layout"
	"github.com/fogleman/gg"
	"github.com/go-pdf/fpdf"
	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
)

// Renderer is the outbound artifact-generation port: one certificate record
// in, one single-page PDF at outputPath out. A failure is fatal for that one
// record only, never for the batch.
type Renderer interface {
	Render(ctx context.Context, certificate domain.Certificate, outputPath string) error
}

const (
	numberFontSize = 28
	// Stamp margins in template pixels (0.6 cm / 0.4 cm at 300 DPI).
	numberMarginRight  = 71
	numberMarginBottom = 47
	numberPillPadding  = 10
	numberPillRadius   = 6

	defaultDPI    = 300
	defaultPrefix = "CERT"
)

type Config struct {
	TemplatePath string
	NameFontPath string
	NumberPrefix string
	DPI          int
	Box          layout.Box
	Fonts        layout.FontRange
}

var _ Renderer = (*PDFRenderer)(nil)

// PDFRenderer composites the recipient name and a document number onto the
// template PNG and writes the result as a single-page PDF sized to the
// template at its DPI.
type PDFRenderer struct {
	cfg       Config
	measurer  *layout.FontMeasurer
	engine    *layout.Engine
	plainFont *truetype.Font
	logger    *zap.Logger
	now       func() time.Time
}

func NewPDFRenderer(cfg Config, logger *zap.Logger) (*PDFRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = defaultDPI
	}
	if cfg.NumberPrefix == "" {
		cfg.NumberPrefix = defaultPrefix
	}

	measurer, err := layout.LoadFontMeasurer(cfg.NameFontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load name font: %w", err)
	}

	engine, err := layout.NewEngine(measurer)
	if err != nil {
		return nil, err
	}

	plainFont, err := loadPlainFont(plainFontCandidates)
	if err != nil {
		// Last resort: stamp numbers with the script font rather than fail.
		logger.Warn("no plain font available, using name font for document numbers", zap.Error(err))
		plainFont = measurer.Font()
	}

	return &PDFRenderer{
		cfg:       cfg,
		measurer:  measurer,
		engine:    engine,
		plainFont: plainFont,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (r *PDFRenderer) Render(ctx context.Context, certificate domain.Certificate, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The template is loaded per render: it can be replaced at runtime via
	// the upload endpoint, and its absence is a per-item error.
	background, err := gg.LoadPNG(r.cfg.TemplatePath)
	if err != nil {
		return fmt.Errorf("certificate template %q not readable: %w", r.cfg.TemplatePath, err)
	}

	dc := gg.NewContextForImage(background)
	imgWidth := dc.Width()
	imgHeight := dc.Height()

	placement := r.engine.Place(certificate.Name, r.cfg.Box, r.cfg.Fonts)
	r.drawName(dc, certificate.Name, placement)
	r.drawDocumentNumber(dc, certificate, imgWidth, imgHeight)

	if err := r.writePDF(dc, certificate.ID, imgWidth, imgHeight, outputPath); err != nil {
		return err
	}

	r.logger.Debug("certificate rendered",
		zap.String("certificateId", certificate.ID),
		zap.Int("fontSize", placement.FontSize),
		zap.String("path", outputPath),
	)
	return nil
}

func (r *PDFRenderer) drawName(dc *gg.Context, name string, placement layout.Placement) {
	face := truetype.NewFace(r.measurer.Font(), &truetype.Options{
		Size: float64(placement.FontSize),
		DPI:  72,
	})
	defer face.Close()

	_, textHeight := r.measurer.Measure(name, placement.FontSize)

	dc.SetFontFace(face)
	dc.SetRGB(0, 0, 0)
	// Placement anchors the top-left corner; DrawString wants the baseline.
	dc.DrawString(name, float64(placement.AnchorX), float64(placement.AnchorY+textHeight))
}

func (r *PDFRenderer) drawDocumentNumber(dc *gg.Context, certificate domain.Certificate, imgWidth, imgHeight int) {
	issuedAt := certificate.CreatedAt
	if issuedAt.IsZero() {
		issuedAt = r.now()
	}
	number := DocumentNumber(r.cfg.NumberPrefix, certificate.ID, issuedAt)

	face := truetype.NewFace(r.plainFont, &truetype.Options{
		Size: numberFontSize,
		DPI:  72,
	})
	defer face.Close()
	dc.SetFontFace(face)

	width, height := dc.MeasureString(number)
	x := float64(imgWidth) - width - numberMarginRight
	baseline := float64(imgHeight) - numberMarginBottom
	top := baseline - height

	// Semi-transparent white pill keeps the number readable on any template.
	dc.SetRGBA(1, 1, 1, 0.7)
	dc.DrawRoundedRectangle(
		x-numberPillPadding,
		top-numberPillPadding,
		width+2*numberPillPadding,
		height+2*numberPillPadding,
		numberPillRadius,
	)
	dc.Fill()

	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawString(number, x, baseline)
}

func (r *PDFRenderer) writePDF(dc *gg.Context, certificateID string, imgWidth, imgHeight int, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return fmt.Errorf("failed to encode composited image: %w", err)
	}

	widthPt := float64(imgWidth) * 72 / float64(r.cfg.DPI)
	heightPt := float64(imgHeight) * 72 / float64(r.cfg.DPI)

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: widthPt, Ht: heightPt},
	})
	pdf.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(certificateID, opts, &buf)
	pdf.ImageOptions(certificateID, 0, 0, widthPt, heightPt, false, opts, 0, "")

	if err := pdf.OutputFileAndClose(outputPath); err != nil {
		return fmt.Errorf("failed to write certificate pdf: %w", err)
	}
	return nil
}
