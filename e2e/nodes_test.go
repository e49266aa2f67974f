package e2e

import (
	"net/http"
	"testing"
	"time"

	"chap/internal/constants"
	"chap/internal/nodetoken"
)

// ============================================
// Node Registration Tests
// ============================================

func TestCreateNodeRequiresAdmin(t *testing.T) {
	ts := StartTestServer(t)
	user := ts.CreateTestUser(t, "operator", "initial-password-1", false)
	session := ts.LoginUser(t, user.Username, user.Password)

	resp, err := ts.RequestWithToken("POST", "/api/nodes", session, map[string]string{"name": "worker-1"})
	if err != nil {
		t.Fatalf("create node request failed: %v", err)
	}
	ExpectError(t, resp, http.StatusForbidden, "forbidden")
}

func TestCreateAndListNodes(t *testing.T) {
	ts := StartTestServer(t)

	createResp, err := ts.POST("/api/nodes", map[string]string{"name": "worker-1"})
	if err != nil {
		t.Fatalf("create node request failed: %v", err)
	}
	var created struct {
		Node struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"node"`
		Secret string `json:"secret"`
	}
	DecodeJSON(t, createResp, http.StatusCreated, &created)

	if created.Node.ID == "" {
		t.Error("expected a node id")
	}
	// The secret is shown once at registration and never listed again.
	if created.Secret == "" {
		t.Error("expected a node secret at registration")
	}

	listResp, err := ts.GET("/api/nodes")
	if err != nil {
		t.Fatalf("list request failed: %v", err)
	}
	var list struct {
		Nodes []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Secret string `json:"secret"`
		} `json:"nodes"`
	}
	DecodeJSON(t, listResp, http.StatusOK, &list)

	if len(list.Nodes) != 1 || list.Nodes[0].Name != "worker-1" {
		t.Fatalf("unexpected node listing: %+v", list.Nodes)
	}
	if list.Nodes[0].Secret != "" {
		t.Error("node secret must not appear in listings")
	}
}

func TestDuplicateNodeNameConflict(t *testing.T) {
	ts := StartTestServer(t)

	first, err := ts.POST("/api/nodes", map[string]string{"name": "worker-1"})
	if err != nil {
		t.Fatalf("create node request failed: %v", err)
	}
	DecodeJSON(t, first, http.StatusCreated, nil)

	second, err := ts.POST("/api/nodes", map[string]string{"name": "worker-1"})
	if err != nil {
		t.Fatalf("create node request failed: %v", err)
	}
	ExpectError(t, second, http.StatusConflict, "conflict")
}

// ============================================
// Node Access Token Tests
// ============================================

func (ts *TestServer) createNode(t *testing.T, name string) string {
	t.Helper()
	resp, err := ts.POST("/api/nodes", map[string]string{"name": name})
	if err != nil {
		t.Fatalf("create node request failed: %v", err)
	}
	var created struct {
		Node struct {
			ID string `json:"id"`
		} `json:"node"`
	}
	DecodeJSON(t, resp, http.StatusCreated, &created)
	return created.Node.ID
}

func TestMintNodeAccessToken(t *testing.T) {
	ts := StartTestServer(t)
	nodeID := ts.createNode(t, "worker-1")

	resp, err := ts.POST("/api/nodes/"+nodeID+"/access-token", map[string]interface{}{
		"scopes":      []string{"deployments:read"},
		"ttl_seconds": 120,
	})
	if err != nil {
		t.Fatalf("mint request failed: %v", err)
	}
	var minted struct {
		Token     string `json:"token"`
		Subject   string `json:"subject"`
		ExpiresAt int64  `json:"expires_at"`
	}
	DecodeJSON(t, resp, http.StatusOK, &minted)

	if minted.Token == "" || minted.Subject == "" {
		t.Fatal("expected token and subject in mint response")
	}

	// The minted token verifies against the node's own secret.
	minter := nodetoken.NewMinter(ts.App.Store)
	claims, err := minter.Verify(minted.Token)
	if err != nil {
		t.Fatalf("minted token failed verification: %v", err)
	}
	if claims.NodeID != nodeID {
		t.Errorf("expected node id %s, got %s", nodeID, claims.NodeID)
	}
	if len(claims.Scopes) != 1 || claims.Scopes[0] != "deployments:read" {
		t.Errorf("unexpected scopes %v", claims.Scopes)
	}

	ttl := minted.ExpiresAt - time.Now().Unix()
	if ttl < 100 || ttl > 130 {
		t.Errorf("expected roughly 120s ttl, got %ds", ttl)
	}
}

func TestMintTTLClamped(t *testing.T) {
	ts := StartTestServer(t)
	nodeID := ts.createNode(t, "worker-1")

	resp, err := ts.POST("/api/nodes/"+nodeID+"/access-token", map[string]interface{}{
		"scopes":      []string{"deployments:read"},
		"ttl_seconds": 86400,
	})
	if err != nil {
		t.Fatalf("mint request failed: %v", err)
	}
	var minted struct {
		ExpiresAt int64 `json:"expires_at"`
	}
	DecodeJSON(t, resp, http.StatusOK, &minted)

	maxExpiry := time.Now().Add(constants.NodeTokenMaxTTL + 10*time.Second).Unix()
	if minted.ExpiresAt > maxExpiry {
		t.Errorf("ttl not clamped: expires %d, max %d", minted.ExpiresAt, maxExpiry)
	}
}

func TestMintUnknownNode(t *testing.T) {
	ts := StartTestServer(t)

	resp, err := ts.POST("/api/nodes/no-such-node/access-token", map[string]interface{}{
		"scopes": []string{"deployments:read"},
	})
	if err != nil {
		t.Fatalf("mint request failed: %v", err)
	}
	ExpectError(t, resp, http.StatusNotFound, "not_found")
}

func TestMintScopeEscalationBlocked(t *testing.T) {
	ts := StartTestServer(t)
	nodeID := ts.createNode(t, "worker-1")
	user := ts.CreateTestUser(t, "minter", "initial-password-1", false)

	// Caller holds nodes:token and deployments:read; it may not mint wider.
	raw := ts.CreatePersonalToken(t, user, "mint", []string{"nodes:token", "deployments:read"})

	denied, err := ts.RequestWithToken("POST", "/api/nodes/"+nodeID+"/access-token", raw, map[string]interface{}{
		"scopes": []string{"deployments:write"},
	})
	if err != nil {
		t.Fatalf("mint request failed: %v", err)
	}
	ExpectError(t, denied, http.StatusForbidden, "forbidden")

	allowed, err := ts.RequestWithToken("POST", "/api/nodes/"+nodeID+"/access-token", raw, map[string]interface{}{
		"scopes": []string{"deployments:read"},
	})
	if err != nil {
		t.Fatalf("mint request failed: %v", err)
	}
	DecodeJSON(t, allowed, http.StatusOK, nil)
}

func TestMintConstraintEscalationBlocked(t *testing.T) {
	ts := StartTestServer(t)
	nodeID := ts.createNode(t, "worker-1")
	user := ts.CreateTestUser(t, "scoped", "initial-password-1", false)
	session := ts.LoginUser(t, user.Username, user.Password)

	// A token pinned to team t1 cannot mint credentials for team t2.
	createResp, err := ts.RequestWithToken("POST", "/api/tokens", session, map[string]interface{}{
		"name":        "team-bound",
		"scopes":      []string{"nodes:token", "deployments:read"},
		"constraints": map[string]string{"team_id": "t1"},
	})
	if err != nil {
		t.Fatalf("create token request failed: %v", err)
	}
	var created struct {
		Raw string `json:"raw_token"`
	}
	DecodeJSON(t, createResp, http.StatusCreated, &created)

	denied, err := ts.RequestWithToken("POST", "/api/nodes/"+nodeID+"/access-token", created.Raw, map[string]interface{}{
		"scopes":      []string{"deployments:read"},
		"constraints": map[string]string{"team_id": "t2"},
	})
	if err != nil {
		t.Fatalf("mint request failed: %v", err)
	}
	ExpectError(t, denied, http.StatusForbidden, "forbidden")

	allowed, err := ts.RequestWithToken("POST", "/api/nodes/"+nodeID+"/access-token", created.Raw, map[string]interface{}{
		"scopes":      []string{"deployments:read"},
		"constraints": map[string]string{"team_id": "t1"},
	})
	if err != nil {
		t.Fatalf("mint request failed: %v", err)
	}
	DecodeJSON(t, allowed, http.StatusOK, nil)
}
