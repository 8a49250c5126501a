package ps

import (
	"fmt"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/storer"
)

// Transaction identifies one save of the catalog.
type Transaction struct {
	Id      string
	When    time.Time
	Author  string // "Name <email>"
	Message string
}

func (transaction Transaction) String() string {
	return fmt.Sprintf("Transaction{Id: %s, When: %s, Author: %s}", transaction.Id, transaction.When, transaction.Author)
}

// Short returns the abbreviated commit id.
func (transaction Transaction) Short() string {
	if len(transaction.Id) > 8 {
		return transaction.Id[:8]
	}
	return transaction.Id
}

func formatAuthor(sig object.Signature) string {
	if sig.Name == "" && sig.Email == "" {
		return ""
	}
	return fmt.Sprintf("%s <%s>", sig.Name, sig.Email)
}

func commitTransaction(c *object.Commit) Transaction {
	return Transaction{
		Id:      c.Hash.String(),
		When:    c.Committer.When,
		Author:  formatAuthor(c.Author),
		Message: c.Message,
	}
}

// LatestTransaction returns the HEAD save, or the zero Transaction before
// the first one.
func (persistence *Persistence) LatestTransaction() Transaction {
	headRef, err := persistence.repo.Head()
	if err != nil || headRef == nil {
		return Transaction{}
	}

	commit, err := persistence.repo.CommitObject(headRef.Hash())
	if err != nil {
		return Transaction{}
	}
	return commitTransaction(commit)
}

// TransactionsSince lists saves made at or after asof, newest first.
func (persistence *Persistence) TransactionsSince(asof time.Time) []Transaction {
	return persistence.log(&git.LogOptions{Since: &asof}, 0)
}

// History lists up to limit saves reachable from HEAD, newest first. A
// limit of zero means all of them.
func (persistence *Persistence) History(limit int) []Transaction {
	return persistence.log(&git.LogOptions{}, limit)
}

func (persistence *Persistence) log(opts *git.LogOptions, limit int) []Transaction {
	if persistence.LatestTransaction().Id == "" {
		return nil
	}

	cIter, err := persistence.repo.Log(opts)
	if err != nil {
		return nil
	}
	defer cIter.Close()

	var transactions []Transaction
	cIter.ForEach(func(c *object.Commit) error {
		transactions = append(transactions, commitTransaction(c))
		if limit > 0 && len(transactions) >= limit {
			return storer.ErrStop
		}
		return nil
	})
	return transactions
}
