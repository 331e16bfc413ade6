package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"pkgforge/bot/forge"
	"pkgforge/bot/tasks"
	"pkgforge/utils"
)

const signatureHeader = "X-Pkgforge-Signature-256"

const approvalContext = "pkgforge/approval"

type webhookEvent struct {
	Event string `json:"event"`

	Namespace string `json:"namespace"`
	RepoName  string `json:"repo_name"`

	CommitSha string `json:"commit_sha"`
	CloneURL  string `json:"clone_url"`

	PrNumber   *int    `json:"pr_number"`
	BranchName *string `json:"branch_name"`

	AccountName string `json:"account_name"`
}

func (s *Service) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, s.webhookSecret)
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Webhook accepts forge events, gates them on the allowlist, and hands the
// actual processing to the task queue.
func (s *Service) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "error reading request body", http.StatusBadRequest)
		return
	}

	if !s.verifySignature(body, r.Header.Get(signatureHeader)) {
		slog.Error("webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "error parsing webhook payload", http.StatusBadRequest)
		return
	}

	switch event.Event {
	case "pull_request", "branch_push":
	default:
		slog.Info("ignoring webhook event", "event", event.Event)
		utils.WriteSuccess(w)
		return
	}

	approved, err := s.allowlist.IsApproved(event.AccountName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !approved {
		slog.Info("account not allowlisted, refusing to build", "account", event.AccountName)
		err := s.forgeFor(event.Namespace, event.RepoName).ReportCommitStatus(r.Context(), forge.CommitStatus{
			Commit:      event.CommitSha,
			Context:     approvalContext,
			State:       forge.StateError,
			Description: "Account is not allowlisted, waiting for an admin to approve it.",
		})
		if err != nil {
			slog.Error("error reporting approval status", "commit_sha", event.CommitSha, "error", err)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	args := map[string]interface{}{
		"event":        event.Event,
		"namespace":    event.Namespace,
		"repo_name":    event.RepoName,
		"commit_sha":   event.CommitSha,
		"clone_url":    event.CloneURL,
		"account_name": event.AccountName,
	}
	if event.PrNumber != nil {
		args["pr_number"] = *event.PrNumber
	}
	if event.BranchName != nil {
		args["branch_name"] = *event.BranchName
	}

	if err := s.queue.Enqueue(r.Context(), tasks.ProcessCoprBuild, args, 0); err != nil {
		http.Error(w, "error enqueueing build task", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
