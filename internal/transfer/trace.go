package transfer

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"sort"
	"strings"

	"github.com/ickyclip/icky/internal/observability"
)

// newClientTrace logs connection setup the way curl's verbose mode does.
func newClientTrace(l *observability.Logger) *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn: func(hostPort string) {
			l.TraceEvent("get_conn", map[string]string{"host": hostPort})
		},
		DNSStart: func(info httptrace.DNSStartInfo) {
			l.TraceEvent("dns_start", map[string]string{"host": info.Host})
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			fields := map[string]string{"addrs": joinAddrs(info.Addrs)}
			if info.Err != nil {
				fields["error"] = info.Err.Error()
			}
			l.TraceEvent("dns_done", fields)
		},
		ConnectStart: func(network, addr string) {
			l.TraceEvent("connect_start", map[string]string{"network": network, "addr": addr})
		},
		ConnectDone: func(network, addr string, err error) {
			fields := map[string]string{"network": network, "addr": addr}
			if err != nil {
				fields["error"] = err.Error()
			}
			l.TraceEvent("connect_done", fields)
		},
		TLSHandshakeStart: func() {
			l.TraceEvent("tls_handshake_start", nil)
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			fields := map[string]string{
				"version":      tls.VersionName(state.Version),
				"cipher_suite": tls.CipherSuiteName(state.CipherSuite),
				"alpn":         state.NegotiatedProtocol,
			}
			if len(state.PeerCertificates) > 0 {
				fields["server_subject"] = state.PeerCertificates[0].Subject.String()
				fields["server_issuer"] = state.PeerCertificates[0].Issuer.String()
			}
			if err != nil {
				fields["error"] = err.Error()
			}
			l.TraceEvent("tls_handshake_done", fields)
		},
		GotConn: func(info httptrace.GotConnInfo) {
			l.TraceEvent("got_conn", map[string]string{
				"remote": info.Conn.RemoteAddr().String(),
				"reused": fmt.Sprint(info.Reused),
			})
		},
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			fields := map[string]string{}
			if info.Err != nil {
				fields["error"] = info.Err.Error()
			}
			l.TraceEvent("wrote_request", fields)
		},
		GotFirstResponseByte: func() {
			l.TraceEvent("first_response_byte", nil)
		},
	}
}

func traceRequest(l *observability.Logger, req *http.Request) {
	fields := headerFields(req.Header)
	fields["request_line"] = fmt.Sprintf("%s %s %s", req.Method, req.URL.RequestURI(), req.Proto)
	fields["host"] = req.URL.Host
	fields["content_length"] = fmt.Sprint(req.ContentLength)
	l.TraceEvent("request", fields)
}

func traceResponse(l *observability.Logger, resp *http.Response) {
	fields := headerFields(resp.Header)
	fields["status_line"] = fmt.Sprintf("%s %s", resp.Proto, resp.Status)
	fields["content_length"] = fmt.Sprint(resp.ContentLength)
	l.TraceEvent("response", fields)
}

func headerFields(h http.Header) map[string]string {
	fields := make(map[string]string, len(h))
	for name, values := range h {
		fields["header."+strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return fields
}

func joinAddrs(addrs []net.IPAddr) string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}
