package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/config"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/protocol"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/gateway/middleware"
)

const (
	lendingRequestLimit = 1 << 20 // 1 MiB
	defaultEventLimit   = 100
)

var (
	errUnauthenticated  = errors.New("authenticated subject required")
	errIdentityMismatch = errors.New("request identity does not match token subject")
)

type lendingRoutes struct {
	protocol *protocol.Protocol
	auth     *middleware.Authenticator
	logger   *slog.Logger
}

func (lr *lendingRoutes) mountReads(r chi.Router) {
	r.Get("/markets", lr.listMarkets)
	r.Get("/markets/{pool}", lr.getMarket)
	r.Get("/accounts/{address}", lr.getAccount)
	r.Get("/events", lr.listEvents)
}

func (lr *lendingRoutes) mountActions(r chi.Router) {
	r.Post("/markets/{pool}/{action}", lr.marketAction)
}

func (lr *lendingRoutes) mountAdmin(r chi.Router) {
	r.Post("/oracle/prices", lr.setPrice)
	r.Post("/clock/advance", lr.advanceClock)
}

// actor resolves the account a request acts as. With a token it is the
// token subject, and a body field may only repeat it. Without one the body
// field is used, which the authenticator only allows in development mode.
func (lr *lendingRoutes) actor(r *http.Request, field, claimed string) (ethcommon.Address, error) {
	if subject, ok := middleware.Subject(r.Context()); ok {
		account, err := parseAddress("token subject", subject)
		if err != nil {
			return ethcommon.Address{}, fmt.Errorf("%w: %v", errUnauthenticated, err)
		}
		if strings.TrimSpace(claimed) == "" {
			return account, nil
		}
		named, err := parseAddress(field, claimed)
		if err != nil {
			return ethcommon.Address{}, err
		}
		if named != account {
			return ethcommon.Address{}, fmt.Errorf("%w: %s", errIdentityMismatch, field)
		}
		return account, nil
	}
	if !lr.auth.AnonymousIdentities() {
		return ethcommon.Address{}, errUnauthenticated
	}
	return parseAddress(field, claimed)
}

func (lr *lendingRoutes) listMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := lr.protocol.Markets()
	if err != nil {
		lr.writeError(w, err)
		return
	}
	out := make([]marketView, 0, len(markets))
	for _, m := range markets {
		out = append(out, newMarketView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": out})
}

func (lr *lendingRoutes) getMarket(w http.ResponseWriter, r *http.Request) {
	pool, err := parseAddress("pool", chi.URLParam(r, "pool"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	market, err := lr.protocol.Market(pool)
	if err != nil {
		lr.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newMarketView(market))
}

func (lr *lendingRoutes) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	summary, err := lr.protocol.Account(account)
	if err != nil {
		lr.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountView(summary))
}

func (lr *lendingRoutes) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": lr.protocol.Events(limit)})
}

// Account is optional when the request carries a token.
type actionRequest struct {
	Account    string `json:"account,omitempty"`
	Amount     string `json:"amount"`
	Borrower   string `json:"borrower,omitempty"`
	Collateral string `json:"collateral,omitempty"`
	To         string `json:"to,omitempty"`
}

func (lr *lendingRoutes) marketAction(w http.ResponseWriter, r *http.Request) {
	pool, err := parseAddress("pool", chi.URLParam(r, "pool"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var req actionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	action := chi.URLParam(r, "action")
	if action == "accrue" {
		if err := lr.protocol.AccrueInterest(pool); err != nil {
			lr.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "accrued"})
		return
	}

	account, err := lr.actor(r, "account", req.Account)
	if err != nil {
		lr.writeActorError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	var result map[string]string
	switch action {
	case "mint":
		var minted *uint256.Int
		if minted, err = lr.protocol.Mint(account, pool, amount); err == nil {
			result = map[string]string{"mintedTokens": minted.Dec()}
		}
	case "redeem":
		var paid *uint256.Int
		if paid, err = lr.protocol.Redeem(account, pool, amount); err == nil {
			result = map[string]string{"redeemedAmount": paid.Dec()}
		}
	case "redeem-underlying":
		var burned *uint256.Int
		if burned, err = lr.protocol.RedeemUnderlying(account, pool, amount); err == nil {
			result = map[string]string{"redeemedTokens": burned.Dec()}
		}
	case "borrow":
		if err = lr.protocol.Borrow(account, pool, amount); err == nil {
			result = map[string]string{"borrowed": amount.Dec()}
		}
	case "repay":
		borrower := account
		if req.Borrower != "" {
			if borrower, err = parseAddress("borrower", req.Borrower); err != nil {
				writeBadRequest(w, err)
				return
			}
		}
		var repaid *uint256.Int
		if repaid, err = lr.protocol.RepayBorrowBehalf(account, borrower, pool, amount); err == nil {
			result = map[string]string{"repaid": repaid.Dec()}
		}
	case "liquidate":
		borrower, perr := parseAddress("borrower", req.Borrower)
		if perr != nil {
			writeBadRequest(w, perr)
			return
		}
		collateral, perr := parseAddress("collateral", req.Collateral)
		if perr != nil {
			writeBadRequest(w, perr)
			return
		}
		var seized *uint256.Int
		if seized, err = lr.protocol.LiquidateBorrow(account, borrower, pool, amount, collateral); err == nil {
			result = map[string]string{"seizedTokens": seized.Dec()}
		}
	case "transfer":
		to, perr := parseAddress("to", req.To)
		if perr != nil {
			writeBadRequest(w, perr)
			return
		}
		if err = lr.protocol.Transfer(account, to, pool, amount); err == nil {
			result = map[string]string{"transferred": amount.Dec()}
		}
	default:
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("unknown action %q", action))
		return
	}
	if err != nil {
		lr.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Account defaults to the token subject. Funding other accounts is allowed.
type faucetRequest struct {
	Asset   string `json:"asset"`
	Account string `json:"account,omitempty"`
	Amount  string `json:"amount"`
}

func (lr *lendingRoutes) faucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var account ethcommon.Address
	if strings.TrimSpace(req.Account) == "" {
		account, err = lr.actor(r, "account", "")
	} else {
		account, err = parseAddress("account", req.Account)
	}
	if err != nil {
		lr.writeActorError(w, err)
		return
	}
	amount, err := config.ParseAmount(req.Amount)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("amount: %w", err))
		return
	}
	if err := lr.protocol.Faucet(asset, account, amount); err != nil {
		lr.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"funded": amount.Dec()})
}

type priceRequest struct {
	Caller string `json:"caller,omitempty"`
	Asset  string `json:"asset"`
	// Price is the value of one whole token as a decimal, e.g. "1300.5".
	Price string `json:"price"`
}

func (lr *lendingRoutes) setPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := lr.actor(r, "caller", req.Caller)
	if err != nil {
		lr.writeActorError(w, err)
		return
	}
	asset, err := parseAddress("asset", req.Asset)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	price, err := config.ParseMantissa(req.Price)
	if err != nil {
		writeBadRequest(w, fmt.Errorf("price: %w", err))
		return
	}
	if err := lr.protocol.SetPrice(caller, asset, price); err != nil {
		lr.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"asset": asset.Hex(), "price": config.FormatMantissa(price)})
}

type advanceRequest struct {
	Milliseconds uint64 `json:"ms"`
}

func (lr *lendingRoutes) advanceClock(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Milliseconds == 0 {
		writeBadRequest(w, fmt.Errorf("ms must be positive"))
		return
	}
	now := lr.protocol.AdvanceTime(req.Milliseconds)
	writeJSON(w, http.StatusOK, map[string]uint64{"now": now})
}

func decodeRequest(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, lendingRequestLimit+1))
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	if len(body) > lendingRequestLimit {
		return fmt.Errorf("request body too large")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAddress(field, value string) (ethcommon.Address, error) {
	return config.ParseAddress(field, value)
}

// parseAmount accepts base units, or "max" for the full uint256 range.
func parseAmount(value string) (*uint256.Int, error) {
	if strings.EqualFold(strings.TrimSpace(value), "max") {
		return new(uint256.Int).SetAllOne(), nil
	}
	amount, err := config.ParseAmount(value)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	return amount, nil
}

func (lr *lendingRoutes) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		lr.logger.Error("lending request failed", "error", err)
	}
	writeJSONError(w, status, err)
}

// writeActorError maps identity failures to 401/403 and anything else,
// such as a malformed address, to 400.
func (lr *lendingRoutes) writeActorError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnauthenticated) || errors.Is(err, errIdentityMismatch) {
		writeJSONError(w, statusFor(err), err)
		return
	}
	writeBadRequest(w, err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSONError(w, http.StatusBadRequest, err)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		message = err.Error()
	}
	writeJSON(w, status, map[string]string{"error": message})
}

