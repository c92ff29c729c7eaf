package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"autogramhandoff/config"
	"autogramhandoff/config/database"
	"autogramhandoff/internal/agp/relay"
	agpRepository "autogramhandoff/internal/agp/repository"
	agpService "autogramhandoff/internal/agp/service"
	"autogramhandoff/internal/da/agpclient"
	daModel "autogramhandoff/internal/da/model"
	daRepository "autogramhandoff/internal/da/repository"
	daService "autogramhandoff/internal/da/service"
	"autogramhandoff/socket"
	"autogramhandoff/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiKey = "shared-key"

var sessionIDPattern = regexp.MustCompile(`var sessionId = "([^"]+)"`)

func openDB(t *testing.T) *sql.DB {
	db, err := database.Connect(context.Background(), config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type servers struct {
	agp *httptest.Server
	da  *httptest.Server
}

func startServers(t *testing.T) servers {
	ctx := context.Background()

	var daHandler http.Handler
	da := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		daHandler.ServeHTTP(w, r)
	}))
	t.Cleanup(da.Close)

	var agpHandler http.Handler
	agp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agpHandler.ServeHTTP(w, r)
	}))
	t.Cleanup(agp.Close)

	agpRepo := agpRepository.NewSessionRepository(openDB(t))
	require.NoError(t, agpRepo.Migrate(ctx))
	agpCfg := config.AGPConfig{BaseURL: agp.URL, APIKey: apiKey, SignerMode: config.SignerMock, FrameAncestors: da.URL}
	agpHandler = SetupAGP(agpService.NewSessionService(agpRepo, relay.New(apiKey), apiKey), agpCfg)

	daDB := openDB(t)
	daRepo := daRepository.NewDocumentRepository(daDB)
	require.NoError(t, daRepo.Migrate(ctx))
	hub := socket.NewHub(daDB)
	go hub.Run()
	t.Cleanup(hub.Close)

	daCfg := config.DAConfig{BaseURL: da.URL, AGPURL: agp.URL, APIKey: apiKey}
	daSvc := daService.NewDocumentService(daRepo, hub, agpclient.New(agp.URL), daService.Options{APIKey: apiKey, BaseURL: da.URL})
	require.NoError(t, daSvc.SeedDefaults(ctx))
	daHandler = SetupDA(daSvc, hub, daCfg)

	return servers{agp: agp, da: da}
}

func getBody(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func postJSON(t *testing.T, url, body string) (int, string) {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestSigningHandoff(t *testing.T) {
	s := startServers(t)

	// 1. The DA opens a session on the AGP and embeds its SDK.
	code, page := getBody(t, s.da.URL+"/sign")
	require.Equal(t, http.StatusOK, code, page)
	assert.Contains(t, page, s.agp.URL+"/sdk.js")
	m := sessionIDPattern.FindStringSubmatch(page)
	require.Len(t, m, 2)
	sessionID := m[1]

	// 2. The frame lists the DA documents, which are served by URL.
	code, frame := getBody(t, s.agp.URL+"/iframe?sessionId="+sessionID)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, frame, "hello.txt")

	code, docs := getBody(t, s.da.URL+"/documents")
	require.Equal(t, http.StatusOK, code)
	var list []daModel.Document
	require.NoError(t, json.Unmarshal([]byte(docs), &list))
	require.Len(t, list, 1)
	code, content := getBody(t, s.da.URL+"/documents/"+list[0].ID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Hello, world!", content)

	// 3. Signing results reach the DA through the relay.
	signed := "=== SIGNED === Hello, world! === SIGNED ==="
	code, _ = postJSON(t, s.agp.URL+"/document-signed",
		`{"sessionId":"`+sessionID+`","documentId":"`+list[0].ID+`","signedDocument":"`+signed+`"}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = postJSON(t, s.agp.URL+"/signing-complete", `{"sessionId":"`+sessionID+`"}`)
	require.Equal(t, http.StatusOK, code)

	code, body := getBody(t, s.da.URL+"/sessions/"+sessionID)
	require.Equal(t, http.StatusOK, code)
	var session daModel.SessionResponse
	require.NoError(t, json.Unmarshal([]byte(body), &session))
	assert.True(t, session.Completed)
	require.Len(t, session.SignedDocuments, 1)
	assert.Equal(t, signed, session.SignedDocuments[0].Content)
	assert.Equal(t, store.Digest(signed), session.SignedDocuments[0].Digest)

	// 4. A page watching the session late still sees everything.
	wsURL := "ws" + strings.TrimPrefix(s.da.URL, "http") + "/ws?sessionId=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var types []string
	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var msg socket.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		types = append(types, msg.Type)
	}
	assert.Equal(t, []string{socket.DocumentSignedType, socket.SigningCompleteType}, types)
}

func TestAGPRejectsUnknownSessions(t *testing.T) {
	s := startServers(t)

	code, _ := getBody(t, s.agp.URL+"/iframe?sessionId=unknown")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = postJSON(t, s.agp.URL+"/start-signing", `{"apiKey":"wrong","manifest":[]}`)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestDACallbacksRequireToken(t *testing.T) {
	s := startServers(t)

	code, _ := postJSON(t, s.da.URL+"/callbacks/document-signed", `{"sessionId":"s1","signedDocument":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = postJSON(t, s.da.URL+"/callbacks/signing-complete", `{"sessionId":"s1"}`)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestDocumentsAllowCrossOrigin(t *testing.T) {
	s := startServers(t)

	req, err := http.NewRequest(http.MethodOptions, s.da.URL+"/documents/anything", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	code, _ := getBody(t, s.da.URL+"/documents/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSDKServed(t *testing.T) {
	s := startServers(t)

	resp, err := http.Get(s.agp.URL + "/sdk.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))
}
