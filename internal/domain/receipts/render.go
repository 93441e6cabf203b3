package receipts

import (
	"bytes"
	"fmt"
	"html"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/jung-kurt/gofpdf"
)

// Renderer produces the receipt email body and the archived PDF copy. Both
// are deterministic for a given snapshot, so retries re-render identical
// documents.
type Renderer struct {
	Dir string
}

func NewRenderer(dir string) *Renderer {
	return &Renderer{Dir: dir}
}

func kindLabel(kind string) string {
	switch kind {
	case "in":
		return "Entrada"
	case "out":
		return "Salida"
	case "correction":
		return "Corrección"
	}
	return kind
}

// RenderHTML builds the receipt email body.
func (r *Renderer) RenderHTML(item Item) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<h2>Comprobante de asistencia</h2>")
	fmt.Fprintf(&b, "<p>Trabajador(a): <strong>%s</strong></p>", html.EscapeString(item.DisplayName))
	fmt.Fprintf(&b, "<p>Evento: <strong>%s</strong></p>", html.EscapeString(kindLabel(item.Kind)))
	fmt.Fprintf(&b, "<p>Fecha y hora: <strong>%s</strong></p>", item.EventTS.UTC().Format("2006-01-02 15:04:05 MST"))
	if item.SiteName != "" {
		fmt.Fprintf(&b, "<p>Lugar: <strong>%s</strong></p>", html.EscapeString(item.SiteName))
	}
	fmt.Fprintf(&b, "<p>Código de verificación:<br/><code>%s</code></p>", html.EscapeString(item.SelfHash))
	b.WriteString("<p>Este comprobante forma parte de un registro encadenado e inalterable (Ley 21.327, Res. Ex. N°38).</p>")
	b.WriteString("</body></html>")
	return b.String()
}

// Subject builds the receipt email subject line.
func (r *Renderer) Subject(item Item) string {
	return fmt.Sprintf("Comprobante de asistencia: %s %s", kindLabel(item.Kind), item.EventTS.UTC().Format("2006-01-02 15:04"))
}

// RenderPDF writes the archived PDF receipt, including a QR code of the
// mark's self hash for offline verification, and returns its path.
func (r *Renderer) RenderPDF(item Item) (string, error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", err
	}

	qrCode, err := qr.Encode(item.SelfHash, qr.M, qr.Auto)
	if err != nil {
		return "", err
	}
	qrCode, err = barcode.Scale(qrCode, 256, 256)
	if err != nil {
		return "", err
	}
	var qrPNG bytes.Buffer
	if err := png.Encode(&qrPNG, qrCode); err != nil {
		return "", err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Comprobante de asistencia")
	pdf.Ln(12)
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Trabajador(a): %s", item.DisplayName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Evento: %s", kindLabel(item.Kind)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Fecha y hora: %s", item.EventTS.UTC().Format("2006-01-02 15:04:05 MST")))
	pdf.Ln(7)
	if item.SiteName != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Lugar: %s", item.SiteName))
		pdf.Ln(7)
	}
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 8, fmt.Sprintf("Hash: %s", item.SelfHash))
	pdf.Ln(10)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr-"+item.MarkID, opts, &qrPNG)
	pdf.ImageOptions("qr-"+item.MarkID, 20, pdf.GetY(), 40, 40, false, opts, 0, "")

	path := filepath.Join(r.Dir, fmt.Sprintf("receipt-%s.pdf", item.MarkID))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", err
	}
	return path, nil
}
