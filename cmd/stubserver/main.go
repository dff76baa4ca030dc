// Package main runs a development stub of the PocketLedger server API: an
// in-memory REST backend with JWT login, CRUD for the three record
// collections, and the analytics summary. Meant for local testing of the
// client's offline/online behavior, not for production.
package main

import (
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mvoronin-dev/pocketledger/internal/common"
)

var signingKey = []byte("stub-server-signing-key")

type record map[string]any

type collectionStore struct {
	mu      sync.RWMutex
	records map[string]record
}

func newCollectionStore() *collectionStore {
	return &collectionStore{records: make(map[string]record)}
}

func (s *collectionStore) list() []record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

func (s *collectionStore) put(id string, r record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r["id"] = id
	s.records[id] = r
}

func (s *collectionStore) get(id string) (record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *collectionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return false
	}
	delete(s.records, id)
	return true
}

type server struct {
	collections map[string]*collectionStore
}

func main() {
	addr := flag.String("addr", ":3000", "listen address")
	flag.Parse()

	srv := &server{collections: map[string]*collectionStore{
		"transactions": newCollectionStore(),
		"accounts":     newCollectionStore(),
		"categories":   newCollectionStore(),
	}}

	r := gin.Default()

	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/api/auth/login", srv.login)

	authed := r.Group("/api", srv.requireAuth)
	for name := range srv.collections {
		col := name
		authed.GET("/"+col, func(c *gin.Context) { srv.list(c, col) })
		authed.POST("/"+col, func(c *gin.Context) { srv.create(c, col) })
		authed.PUT("/"+col+"/:id", func(c *gin.Context) { srv.update(c, col) })
		authed.DELETE("/"+col+"/:id", func(c *gin.Context) { srv.remove(c, col) })
	}
	authed.GET("/analytics/summary", srv.summary)

	log.Printf("stub server listening on %s", *addr)
	if err := r.Run(*addr); err != nil {
		log.Fatal(err)
	}
}

// login accepts any email/password pair and issues a short-lived HS256 token.
func (s *server) login(c *gin.Context) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&creds); err != nil || creds.Email == "" || creds.Password == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": creds.Email,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}).SignedString(signingKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signing token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *server) requireAuth(c *gin.Context) {
	auth := c.GetHeader(common.AuthorizationHeaderName)
	if len(auth) <= len(common.BearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	tokenStr := auth[len(common.BearerPrefix):]
	_, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Next()
}

func (s *server) list(c *gin.Context, col string) {
	c.JSON(http.StatusOK, s.collections[col].list())
}

func (s *server) create(c *gin.Context, col string) {
	var body record
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, ok := body["createdAt"]; !ok {
		body["createdAt"] = now
	}
	body["updatedAt"] = now
	s.collections[col].put(id, body)
	c.JSON(http.StatusCreated, body)
}

func (s *server) update(c *gin.Context, col string) {
	id := c.Param("id")
	if _, ok := s.collections[col].get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	var body record
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	body["updatedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	s.collections[col].put(id, body)
	c.JSON(http.StatusOK, body)
}

func (s *server) remove(c *gin.Context, col string) {
	if !s.collections[col].delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// summary recomputes the aggregates from stored transactions on every call.
func (s *server) summary(c *gin.Context) {
	var totalIncome, totalExpense, monthlyIncome, monthlyExpense decimal.Decimal
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	for _, r := range s.collections["transactions"].list() {
		amtStr, _ := r["amount"].(string)
		amt, err := decimal.NewFromString(amtStr)
		if err != nil {
			continue
		}
		dateStr, _ := r["date"].(string)
		date, _ := time.Parse(time.RFC3339Nano, dateStr)
		inMonth := !date.Before(monthStart)

		if kind, _ := r["type"].(string); kind == "income" {
			totalIncome = totalIncome.Add(amt)
			if inMonth {
				monthlyIncome = monthlyIncome.Add(amt)
			}
		} else {
			totalExpense = totalExpense.Add(amt)
			if inMonth {
				monthlyExpense = monthlyExpense.Add(amt)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"totalIncome":    totalIncome,
		"totalExpense":   totalExpense,
		"balance":        totalIncome.Sub(totalExpense),
		"monthlyIncome":  monthlyIncome,
		"monthlyExpense": monthlyExpense,
	})
}
