package control

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"streamcast/internal/models"
	"streamcast/internal/wowza"
)

// Diagnostic check selectors.
const (
	CheckChannel     = "channel"
	CheckIngest      = "ingest"
	CheckPlayback    = "playback"
	CheckCertificate = "certificate"
	CheckSocial      = "social"
)

var allChecks = []string{CheckChannel, CheckIngest, CheckPlayback, CheckCertificate, CheckSocial}

// certExpiryWarning is how close to expiry the certificate check starts
// grading a still-valid certificate as a warning.
const certExpiryWarning = 14 * 24 * time.Hour

// RunDiagnostics probes the owner's endpoint, running the selected checks
// concurrently. No selectors means every check. A check that cannot reach
// its target grades as a warning, not an error; only a confirmed bad state
// grades as an error. The report itself never fails because of a probe.
func (o *Orchestrator) RunDiagnostics(ctx context.Context, ownerID string, selectors []string) ([]Diagnostic, error) {
	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(selectors) == 0 {
		selectors = allChecks
	}

	var (
		mu      sync.Mutex
		results []Diagnostic
	)
	report := func(d Diagnostic) {
		mu.Lock()
		results = append(results, d)
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, selector := range selectors {
		var check func(context.Context) Diagnostic
		switch selector {
		case CheckChannel:
			check = func(ctx context.Context) Diagnostic { return o.checkChannel(ctx, ep) }
		case CheckIngest:
			check = func(ctx context.Context) Diagnostic { return o.checkIngest(ctx, ep) }
		case CheckPlayback:
			check = func(ctx context.Context) Diagnostic { return o.checkPlayback(ctx, ep) }
		case CheckCertificate:
			check = func(ctx context.Context) Diagnostic { return o.checkCertificate(ctx, ep) }
		case CheckSocial:
			check = func(ctx context.Context) Diagnostic { return o.checkSocial(ctx, ep) }
		default:
			continue
		}
		g.Go(func() error {
			report(check(ctx))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, internalErr("run diagnostics", err)
	}
	if len(results) == 0 {
		results = append(results, Diagnostic{
			Status:  DiagnosticWarning,
			Title:   "Diagnostics",
			Message: "no valid check was selected",
		})
	}
	return results, nil
}

func (o *Orchestrator) checkChannel(ctx context.Context, ep models.StreamEndpoint) Diagnostic {
	d := Diagnostic{Title: "Channel"}
	running, err := o.channel.IsRunning(ctx, o.server(ep), ep.Login)
	switch {
	case errors.Is(err, wowza.ErrUnreachable):
		d.Status = DiagnosticWarning
		d.Message = "media server state could not be determined"
		d.Detail = err.Error()
	case err != nil:
		d.Status = DiagnosticError
		d.Message = "media server rejected the status query"
		d.Detail = err.Error()
	case running:
		d.Status = DiagnosticOK
		d.Message = "channel is running"
	default:
		d.Status = DiagnosticError
		d.Message = "channel is not running"
	}
	return d
}

func (o *Orchestrator) checkIngest(ctx context.Context, ep models.StreamEndpoint) Diagnostic {
	d := Diagnostic{Title: "Ingest"}
	streams, err := o.channel.IncomingStreams(ctx, o.server(ep), ep.Login)
	if err != nil {
		d.Status = DiagnosticWarning
		d.Message = "incoming streams could not be listed"
		d.Detail = err.Error()
		return d
	}
	for _, s := range streams {
		if s.Connected {
			d.Status = DiagnosticOK
			d.Message = fmt.Sprintf("encoder %q is publishing at %d kbps", s.Name, s.BitrateKbps)
			return d
		}
	}
	d.Status = DiagnosticWarning
	d.Message = "no encoder is publishing into the application"
	return d
}

func (o *Orchestrator) checkPlayback(ctx context.Context, ep models.StreamEndpoint) Diagnostic {
	d := Diagnostic{Title: "Playback"}
	urls := deriveSourceURLs(ep)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urls.HLS, nil)
	if err != nil {
		d.Status = DiagnosticWarning
		d.Message = "playback url could not be built"
		d.Detail = err.Error()
		return d
	}
	resp, err := o.probe.Do(req)
	if err != nil {
		d.Status = DiagnosticWarning
		d.Message = "playback manifest could not be fetched"
		d.Detail = err.Error()
		return d
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.Status = DiagnosticOK
		d.Message = "playback manifest is being served"
		return d
	}
	d.Status = DiagnosticError
	d.Message = "playback manifest is not available"
	d.Detail = fmt.Sprintf("GET %s returned %d", urls.HLS, resp.StatusCode)
	return d
}

func (o *Orchestrator) checkCertificate(ctx context.Context, ep models.StreamEndpoint) Diagnostic {
	d := Diagnostic{Title: "Certificate"}
	certs, err := o.peerCerts(ctx, net.JoinHostPort(ep.ServerHost, "443"))
	if err != nil {
		d.Status = DiagnosticWarning
		d.Message = "certificate could not be inspected"
		d.Detail = err.Error()
		return d
	}
	if len(certs) == 0 {
		d.Status = DiagnosticWarning
		d.Message = "server presented no certificate"
		return d
	}
	leaf := certs[0]
	now := o.now()
	switch {
	case now.Before(leaf.NotBefore):
		d.Status = DiagnosticError
		d.Message = "certificate is not yet valid"
		d.Detail = fmt.Sprintf("valid from %s", leaf.NotBefore.Format(time.RFC3339))
	case now.After(leaf.NotAfter):
		d.Status = DiagnosticError
		d.Message = "certificate has expired"
		d.Detail = fmt.Sprintf("expired %s", leaf.NotAfter.Format(time.RFC3339))
	case leaf.VerifyHostname(ep.ServerHost) != nil:
		d.Status = DiagnosticError
		d.Message = "certificate does not cover the playback host"
		d.Detail = fmt.Sprintf("host %s not covered", ep.ServerHost)
	case leaf.NotAfter.Sub(now) < certExpiryWarning:
		d.Status = DiagnosticWarning
		d.Message = "certificate expires soon"
		d.Detail = fmt.Sprintf("expires %s", leaf.NotAfter.Format(time.RFC3339))
	default:
		d.Status = DiagnosticOK
		d.Message = fmt.Sprintf("certificate is valid until %s", leaf.NotAfter.Format("2006-01-02"))
	}
	return d
}

// defaultPeerCerts dials the playback host and returns the presented chain.
// Verification is skipped on purpose; the check grades validity itself so an
// expired certificate is reported rather than hidden behind a dial error.
func defaultPeerCerts(ctx context.Context, addr string) ([]*x509.Certificate, error) {
	dialer := &tls.Dialer{Config: &tls.Config{InsecureSkipVerify: true}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.(*tls.Conn).ConnectionState().PeerCertificates, nil
}

func (o *Orchestrator) checkSocial(ctx context.Context, ep models.StreamEndpoint) Diagnostic {
	d := Diagnostic{Title: "Social pushes"}
	sessions, err := o.repo.ListSocialLives(ctx, ep.OwnerID, 0)
	if err != nil {
		d.Status = DiagnosticWarning
		d.Message = "social live sessions could not be listed"
		d.Detail = err.Error()
		return d
	}
	var live, disconnected int
	for _, s := range sessions {
		if s.Status != models.SocialLiveActive || s.Handle == "" {
			continue
		}
		live++
		activity, err := o.channel.QueryPush(ctx, o.server(ep), ep.Login, s.Handle)
		if err != nil || !activity.Connected {
			disconnected++
		}
	}
	switch {
	case live == 0:
		d.Status = DiagnosticOK
		d.Message = "no social pushes are configured as live"
	case disconnected == 0:
		d.Status = DiagnosticOK
		d.Message = fmt.Sprintf("all %d social pushes are connected", live)
	default:
		d.Status = DiagnosticError
		d.Message = fmt.Sprintf("%d of %d social pushes are disconnected", disconnected, live)
	}
	return d
}

// IncomingStreamState lists the publishers connected to the owner's
// application so the panel can tell whether an external encoder is live.
func (o *Orchestrator) IncomingStreamState(ctx context.Context, ownerID string) (IncomingStreamStatus, error) {
	ep, err := o.loadEndpoint(ctx, ownerID)
	if err != nil {
		return IncomingStreamStatus{}, err
	}
	streams, err := o.channel.IncomingStreams(ctx, o.server(ep), ep.Login)
	if err != nil {
		return IncomingStreamStatus{}, channelErr("list incoming streams", err)
	}
	status := IncomingStreamStatus{Streams: streams}
	for _, s := range streams {
		if s.Connected {
			status.Publishing = true
			break
		}
	}
	return status, nil
}
