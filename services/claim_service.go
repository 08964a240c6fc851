// services/claim_service.go
package services

import (
	"log"
	"strconv"

	"link-auction-claims/models"

	"github.com/gofiber/fiber/v2"
)

// ClaimService is the HTTP surface over the session engine: eligibility
// checks, popup slot state and the per-reward claim flows.
type ClaimService struct {
	Sessions *SessionManager
	Elig     *EligibilityService
	Ledger   *ClaimLedgerService
	Auctions *AuctionService
}

func NewClaimService(sessions *SessionManager, elig *EligibilityService, ledger *ClaimLedgerService, auctions *AuctionService) *ClaimService {
	return &ClaimService{Sessions: sessions, Elig: elig, Ledger: ledger, Auctions: auctions}
}

// GetEligibility evaluates one reward kind for the caller's current identity.
// Never cached: the frontend calls this again whenever wallet or sign-in state
// changes.
func (s *ClaimService) GetEligibility(c *fiber.Ctx) error {
	kind, ok := parseKind(c.Params("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown reward kind"})
	}

	rewardContext, err := contextParam(c, s.Auctions)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid context parameter"})
	}

	ident := c.Locals("identity").(Identity)
	verdict, verr := s.Elig.Evaluate(c.Context(), kind, rewardContext, ident)
	if verr != nil {
		// Treated as unknown / not yet claimed; the claim path re-checks.
		log.Printf("⚠️ [ELIGIBILITY] Lookup failed for kind=%s context=%d: %v", kind, rewardContext, verr)
	}

	return c.JSON(fiber.Map{
		"reward_kind":    kind,
		"reward_context": rewardContext,
		"verdict":        verdict,
	})
}

// GetPopupState returns the session's slot holder, its pending queue and every
// flow's current step. The frontend drives all popup rendering off this.
func (s *ClaimService) GetPopupState(c *fiber.Ctx) error {
	sess := s.session(c)

	states := fiber.Map{}
	for kind := range s.Sessions.Amounts {
		if f, ok := sess.Flow(kind); ok {
			states[string(kind)] = fiber.Map{
				"state":          f.State(),
				"reward_context": f.RewardContext(),
				"error":          f.LastError(),
			}
		}
	}

	return c.JSON(fiber.Map{
		"active":  sess.Coordinator.Active(),
		"pending": sess.Coordinator.Pending(),
		"flows":   states,
	})
}

// OpenFlow starts a reward's claim flow for the given (or latest) context.
func (s *ClaimService) OpenFlow(c *fiber.Ctx) error {
	kind, ok := parseKind(c.Params("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown reward kind"})
	}

	var req struct {
		RewardContext int64 `json:"reward_context"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.RewardContext == 0 {
		req.RewardContext = s.Auctions.LatestSettledContext()
	}

	sess := s.session(c)
	flow, ok := sess.Flow(kind)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward kind not configured"})
	}

	ident := c.Locals("identity").(Identity)
	granted := flow.Open(c.Context(), req.RewardContext, ident)

	return c.JSON(fiber.Map{
		"granted": granted,
		"active":  sess.Coordinator.Active(),
		"state":   flow.State(),
	})
}

// NotifyIdentity tells a waiting flow that sign-in completed. The identity
// itself comes from the resolved request context, not the body.
func (s *ClaimService) NotifyIdentity(c *fiber.Ctx) error {
	kind, ok := parseKind(c.Params("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown reward kind"})
	}

	sess := s.session(c)
	flow, ok := sess.Flow(kind)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward kind not configured"})
	}

	ident := c.Locals("identity").(Identity)
	if !ident.Usable() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "No usable identity on request"})
	}

	flow.OnIdentity(c.Context(), ident)
	return c.JSON(fiber.Map{"state": flow.State()})
}

// GetFlow re-runs the already-claimed safety check and returns the step. The
// frontend calls this when a popup becomes visible (again).
func (s *ClaimService) GetFlow(c *fiber.Ctx) error {
	kind, ok := parseKind(c.Params("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown reward kind"})
	}

	sess := s.session(c)
	flow, ok := sess.Flow(kind)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward kind not configured"})
	}

	ident := c.Locals("identity").(Identity)
	flow.Refresh(c.Context(), ident)

	return c.JSON(fiber.Map{
		"state":          flow.State(),
		"reward_context": flow.RewardContext(),
		"error":          flow.LastError(),
		"visible":        sess.Coordinator.IsActive(kind),
	})
}

// SubmitClaim triggers the payout. Success is reported on submission
// acknowledgement; confirmation continues in the background.
func (s *ClaimService) SubmitClaim(c *fiber.Ctx) error {
	kind, ok := parseKind(c.Params("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown reward kind"})
	}

	sess := s.session(c)
	flow, ok := sess.Flow(kind)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward kind not configured"})
	}

	ident := c.Locals("identity").(Identity)
	if !ident.Usable() {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "No usable identity on request"})
	}

	state := flow.Claim(c.Context(), ident)
	switch state {
	case FlowSucceeded:
		return c.JSON(fiber.Map{"state": state, "amount": flow.Amount})
	case FlowAlreadyClaimed:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"state": state, "error": "Reward already claimed"})
	case FlowFailed:
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"state": state, "error": flow.LastError()})
	default:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"state": state, "error": "Claim not ready"})
	}
}

// DismissFlow closes the popup and suppresses re-prompting for this context
// for the rest of the session.
func (s *ClaimService) DismissFlow(c *fiber.Ctx) error {
	kind, ok := parseKind(c.Params("kind"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown reward kind"})
	}

	sess := s.session(c)
	flow, ok := sess.Flow(kind)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Reward kind not configured"})
	}

	flow.Dismiss(c.Context())
	return c.JSON(fiber.Map{"state": flow.State(), "active": sess.Coordinator.Active()})
}

// Redirect resolves the QR target: records the click for the audit trail and
// forwards to the currently winning URL.
func (s *ClaimService) Redirect(c *fiber.Ctx) error {
	cycle, ok := s.Auctions.CurrentWinner()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No settled auction yet"})
	}

	ident, _ := c.Locals("identity").(Identity)
	s.Ledger.RecordClick(c.Context(), cycle.AuctionID, ident)

	return c.Redirect(cycle.WinningURL, fiber.StatusFound)
}

func (s *ClaimService) session(c *fiber.Ctx) *Session {
	sessionID := c.Locals("session_id").(string)
	return s.Sessions.Get(c.Context(), sessionID)
}

func parseKind(raw string) (models.RewardKind, bool) {
	switch models.RewardKind(raw) {
	case models.RewardKindAirdrop, models.RewardKindLikesRecasts, models.RewardKindLinkVisit:
		return models.RewardKind(raw), true
	}
	return "", false
}

func contextParam(c *fiber.Ctx, auctions *AuctionService) (int64, error) {
	raw := c.Query("context")
	if raw == "" {
		return auctions.LatestSettledContext(), nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
