// Package wallet implements the HTTP collaborator surface spec.md §6
// names as a "thin collaborator": balance/address queries and
// transaction submission, translated into the edge manager's wire
// operations. Grounded on original_source/src/client/api.rs (which
// the retrieved snapshot only shows implementing GET /balance) plus
// spec.md §6's full endpoint list, routed in the teacher's
// gorilla/mux style (daglabs-btcd/apiserver/server/routes.go).
package wallet

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/simbtc/simbtc/internal/address"
	"github.com/simbtc/simbtc/internal/block"
	"github.com/simbtc/simbtc/internal/edgenet"
	"github.com/simbtc/simbtc/internal/keys"
	"github.com/simbtc/simbtc/internal/logger"
	"github.com/simbtc/simbtc/internal/message"
	"github.com/simbtc/simbtc/internal/tx"
	"github.com/simbtc/simbtc/internal/utxo"
)

// Server is the wallet's HTTP surface: it owns a mux.Router and the
// collaborators needed to answer balance/address queries and submit
// transactions through the edge connection manager.
type Server struct {
	router  *mux.Router
	utxoMgr *utxo.Manager
	keyMgr  *keys.Manager
	edgeMgr *edgenet.Manager
}

// NewServer builds a wallet HTTP server and registers its routes.
func NewServer(utxoMgr *utxo.Manager, keyMgr *keys.Manager, edgeMgr *edgenet.Manager) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		utxoMgr: utxoMgr,
		keyMgr:  keyMgr,
		edgeMgr: edgeMgr,
	}
	s.addRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) addRoutes() {
	s.router.HandleFunc("/balance", s.getBalance).Methods("GET")
	s.router.HandleFunc("/address/me", s.getAddress).Methods("GET")
	s.router.HandleFunc("/transaction", s.postTransaction).Methods("POST")
	s.router.HandleFunc("/update-balance", s.postUpdateBalance).Methods("POST")
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, balanceResponse{Balance: s.utxoMgr.Balance()})
}

type addressResponse struct {
	Address string `json:"address"`
}

func (s *Server) getAddress(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, addressResponse{Address: s.keyMgr.Address().String()})
}

type transactionRequest struct {
	Recipient string `json:"recipient"`
	Value     uint64 `json:"value"`
	Fee       uint64 `json:"fee"`
}

type transactionResponse struct {
	Transaction tx.Normal `json:"transaction"`
}

func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	normal, err := s.utxoMgr.CreateTransactionFor(address.Address(req.Recipient), req.Value, req.Fee)
	if err != nil {
		logger.WalletLog.Errorf("failed to build transaction: %+v", err)
		sendError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	data, err := tx.CanonicalJSON(normal)
	if err != nil {
		logger.WalletLog.Errorf("failed to canonicalize transaction: %+v", err)
		sendError(w, http.StatusInternalServerError, "failed to canonicalize transaction")
		return
	}
	signature, err := s.keyMgr.Sign(data)
	if err != nil {
		logger.WalletLog.Errorf("failed to sign transaction: %+v", err)
		sendError(w, http.StatusInternalServerError, "failed to sign transaction")
		return
	}

	s.edgeMgr.SendNewTransaction(message.NewNewTransaction(normal, signature))

	sendJSON(w, http.StatusOK, transactionResponse{Transaction: normal})
}

func (s *Server) postUpdateBalance(w http.ResponseWriter, r *http.Request) {
	s.edgeMgr.RequestFullChain()
	sendJSON(w, http.StatusAccepted, struct {
		Status string `json:"status"`
	}{Status: "requested"})
}

// HandleFullChain implements edgenet.FullChainHandler: it refreshes the
// wallet's UTXO view from a core's FullChain reply (spec.md §4.7).
func (s *Server) HandleFullChain(chain []block.Block) {
	var all []tx.Transaction
	for _, b := range chain {
		all = append(all, b.Transaction.All()...)
	}
	if err := s.utxoMgr.Refresh(all); err != nil {
		logger.WalletLog.Errorf("failed to refresh UTXO view: %+v", err)
	}
}

func sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WalletLog.Errorf("failed to encode response: %+v", err)
	}
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: message})
}
