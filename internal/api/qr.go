package api

import (
	"html/template"
	"net/http"

	"github.com/speedwagon-io/solarbridge/internal/lib/logger/sl"
	"github.com/speedwagon-io/solarbridge/internal/qr"
)

var (
	noChallengePage = template.Must(template.New("none").Parse(`<html><body style="font-family:ui-sans-serif,system-ui">
<h2>WhatsApp — QR</h2>
<p>Nenhum QR ativo no momento. Se o app estiver desconectado, aguarde alguns segundos e recarregue.</p>
<p><a href="/">Voltar</a></p>
</body></html>
`))

	challengePage = template.Must(template.New("qr").Parse(`<html><body style="font-family:ui-sans-serif,system-ui; text-align:center;">
<h2>Escaneie o QR no WhatsApp</h2>
<img src="{{.}}" alt="WhatsApp QR" />
<p>Abra o WhatsApp &gt; Dispositivos conectados &gt; Conectar dispositivo</p>
<p><a href="/">Voltar</a></p>
</body></html>
`))
)

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	code, ok := s.challenge.Current()
	if !ok {
		noChallengePage.Execute(w, nil)
		return
	}

	dataURL, err := qr.DataURL(code)
	if err != nil {
		s.log.Error("failed to render pairing challenge", sl.Err(err))
		http.Error(w, "Erro ao gerar QR.", http.StatusInternalServerError)
		return
	}

	// data URLs are not in html/template's safe URL set
	if err := challengePage.Execute(w, template.URL(dataURL)); err != nil {
		s.log.Error("failed to write qr page", sl.Err(err))
	}
}
