package fingerprint

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	utls "github.com/refraction-networking/utls"
)

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	profiles := []Profile{
		ProfileChrome,
		ProfileFirefox,
		ProfileSafari,
		ProfileGo,
		ProfileRandom,
	}

	for _, p := range profiles {
		t.Run(string(p), func(t *testing.T) {
			rt, err := Transport(p)
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}

			tr, ok := rt.(*http.Transport)
			if !ok {
				t.Fatalf("expected *http.Transport, got %T", rt)
			}

			// httptest.NewTLSServer uses self-signed certs, so verification
			// has to be disabled for the test.
			if p == ProfileGo {
				tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			} else {
				originalDialContext := tr.DialContext
				if originalDialContext == nil {
					t.Fatalf("expected DialContext to be populated by Clone")
				}

				helloID := utls.HelloChrome_Auto
				switch p {
				case ProfileFirefox:
					helloID = utls.HelloFirefox_Auto
				case ProfileSafari:
					helloID = utls.HelloIOS_Auto
				case ProfileRandom:
					helloID = utls.HelloRandomizedALPN
				}

				tr.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
					tcpConn, err := originalDialContext(ctx, network, addr)
					if err != nil {
						return nil, err
					}

					host := addr
					if h, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
						host = h
					}

					uConn := utls.UClient(tcpConn, &utls.Config{
						ServerName:         host,
						InsecureSkipVerify: true,
					}, helloID)

					if err := uConn.HandshakeContext(ctx); err != nil {
						_ = tcpConn.Close()
						return nil, err
					}
					return uConn, nil
				}
			}

			client := &http.Client{Transport: tr}
			resp, err := client.Get(ts.URL)
			if err != nil {
				t.Fatalf("request failed for profile %s: %v", p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("unknown_browser"))
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if !strings.Contains(err.Error(), "unknown fingerprint profile") {
		t.Errorf("unexpected error message: %v", err)
	}
}
