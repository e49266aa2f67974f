package services

import (
	"time"

	"github.com/google/uuid"

	"chap/internal/audit"
	"chap/internal/auth"
	"chap/internal/constants"
	"chap/internal/logger"
	"chap/internal/nodetoken"
)

// NodeService manages the node registry and mints node access tokens.
type NodeService struct {
	logger *logger.Logger
	store  *auth.Store
	audit  *audit.Logger
	minter *nodetoken.Minter
}

// NewNodeService creates a new node service.
func NewNodeService(log *logger.Logger, store *auth.Store, auditLog *audit.Logger, minter *nodetoken.Minter) *NodeService {
	return &NodeService{
		logger: log,
		store:  store,
		audit:  auditLog,
		minter: minter,
	}
}

// CreateNodeResult returns the registered node plus its signing secret,
// shown exactly once so it can be configured on the agent.
type CreateNodeResult struct {
	Node   *auth.Node `json:"node"`
	Secret string     `json:"secret"`
}

// CreateNode registers a node and generates its signing secret.
func (s *NodeService) CreateNode(name string, createdBy *int64, ipAddress, username string) (*CreateNodeResult, error) {
	if name == "" {
		return nil, NewServiceError(constants.ErrCodeInvalidRequest, "node name is required")
	}
	if existing, err := s.store.GetNodeByName(name); err == nil && existing != nil {
		return nil, ErrNodeExists
	}

	secret, err := auth.GenerateNodeSecret()
	if err != nil {
		return nil, WrapInternalError(err)
	}

	node, err := s.store.CreateNode(uuid.NewString(), name, secret, createdBy)
	if err != nil {
		return nil, WrapServiceError(constants.ErrCodeConflict, "node name already taken", err)
	}

	s.logger.Info("Nodes: registered node id=%s name=%s", node.ID, node.Name)
	s.audit.Log(constants.AuditActionNodeCreated, ipAddress, username, audit.NodeCreatedDetails{
		NodeID:   node.ID,
		NodeName: node.Name,
	})

	return &CreateNodeResult{Node: node, Secret: secret}, nil
}

// ListNodes returns all registered nodes.
func (s *NodeService) ListNodes() ([]auth.Node, error) {
	nodes, err := s.store.ListNodes()
	if err != nil {
		return nil, WrapInternalError(err)
	}
	return nodes, nil
}

// MintTokenRequest carries the parameters for a node access token.
type MintTokenRequest struct {
	Scopes      []string          `json:"scopes"`
	Constraints *auth.Constraints `json:"constraints,omitempty"`
	TTLSeconds  int64             `json:"ttl_seconds,omitempty"`
}

// MintTokenResult returns the signed token and its effective parameters.
type MintTokenResult struct {
	Token     string `json:"token"`
	Subject   string `json:"subject"`
	ExpiresAt int64  `json:"expires_at"`
}

// MintAccessToken issues a short-lived JWT for the node. The caller's own
// authorization must already cover the requested scopes; the handler checks
// that before delegating here.
func (s *NodeService) MintAccessToken(nodeID string, req MintTokenRequest, ipAddress, username string) (*MintTokenResult, error) {
	if err := validateScopes(req.Scopes); err != nil {
		return nil, err
	}

	node, err := s.store.GetNode(nodeID)
	if err != nil {
		return nil, WrapInternalError(err)
	}
	if node == nil {
		return nil, ErrNodeNotFound
	}

	ttl := nodetoken.ClampTTL(time.Duration(req.TTLSeconds) * time.Second)
	signed, claims, err := s.minter.Mint(nodeID, req.Scopes, req.Constraints, ttl)
	if err != nil {
		return nil, WrapServiceError(constants.ErrCodeNodeSecretUnset, "cannot mint token for node", err)
	}

	s.logger.Info("Nodes: minted access token for node=%s ttl=%s", nodeID, ttl)
	s.audit.Log(constants.AuditActionNodeTokenMinted, ipAddress, username, audit.NodeTokenMintedDetails{
		NodeID:     nodeID,
		Subject:    claims.Subject,
		Scopes:     req.Scopes,
		TTLSeconds: int64(ttl.Seconds()),
	})

	return &MintTokenResult{
		Token:     signed,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}
