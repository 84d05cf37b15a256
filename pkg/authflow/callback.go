package authflow

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

// Callback completes the browser flow. It redeems the code with the stored
// verifier, which is deleted whatever the outcome so a state value can
// never be replayed.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	q := r.URL.Query()

	code := q.Get("code")
	if code == "" {
		if e := q.Get("error"); e != "" {
			log.Warn("provider returned an error", "error", e, "description", q.Get("error_description"))
		}
		return errx.BadRequest("No code provided")
	}

	st, err := parseState(q.Get("state"))
	if err != nil {
		return errx.BadRequest("Invalid state").Wrap(err)
	}
	if st.Nonce == "" {
		return errx.BadRequest("No nonce provided")
	}

	redirect := ""
	if st.Redirect != "" {
		target, ok := c.resolveRedirect(st.Redirect)
		if !ok {
			return errx.BadRequest("Invalid redirect URL")
		}
		redirect = target
	}

	key := VerifierCacheKey(st.Nonce)
	verifier, ok, err := c.verifiers.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("authflow: load verifier: %w", err)
	}
	if !ok {
		return errx.BadRequest("Code verifier not found")
	}

	tok, exchangeErr := c.idp.ExchangeCode(ctx, code, verifier)
	if err := c.verifiers.Delete(ctx, key); err != nil {
		log.Error("failed to delete code verifier", "error", err)
	}
	if exchangeErr != nil {
		return unauthorized("Authorization code rejected", exchangeErr)
	}

	if st.Cookie != "" {
		if _, err := c.sessions.Set(ctx, w, tok, st.Cookie); err != nil {
			return err
		}
	} else if _, err := c.verifier.VerifyIDToken(ctx, tok.IDToken); err != nil {
		return err
	}

	if redirect != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(map[string]string{"status": "authenticated"})
}

func unauthorized(msg string, err error) error {
	return errx.Unauthorized(msg).Wrap(err)
}
