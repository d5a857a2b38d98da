package store

import (
	"fmt"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

func transaction(n int) models.Transaction {
	return models.Transaction{
		Date:        "2025-01-02",
		Description: fmt.Sprintf("Payment %d", n),
		Amount:      decimal.NewFromInt(int64(n + 1)),
		Type:        models.Debit,
		Balance:     decimal.NewNullDecimal(decimal.RequireFromString("100.50")),
	}
}

var _ = Describe("BoltDB", func() {
	var (
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		dbPath = filepath.Join(GinkgoT().TempDir(), "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
		db.now = func() time.Time { return time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC) }
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("CreateStatement", func() {
		var (
			first, second *models.Statement
		)

		BeforeEach(func() {
			first = &models.Statement{FileName: "jan.pdf", Format: models.FormatTextDocument}
			second = &models.Statement{FileName: "feb.csv", Format: models.FormatTabular, Status: models.StatementProcessing}
			Expect(db.CreateStatement(first)).To(Succeed())
			Expect(db.CreateStatement(second)).To(Succeed())
		})

		It("assigns increasing ids", func() {
			Expect(first.ID).To(Equal(uint64(1)))
			Expect(second.ID).To(Equal(uint64(2)))
		})

		It("defaults the status to pending", func() {
			Expect(first.Status).To(Equal(models.StatementPending))
			Expect(second.Status).To(Equal(models.StatementProcessing))
		})

		It("stamps the creation time", func() {
			Expect(first.CreatedAt).To(Equal(time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)))
		})

		It("lists statements oldest first", func() {
			list, err := db.ListStatements()
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].FileName).To(Equal("jan.pdf"))
			Expect(list[1].FileName).To(Equal("feb.csv"))
		})
	})

	Describe("GetStatement", func() {
		When("the statement exists", func() {
			It("round-trips metadata", func() {
				s := &models.Statement{
					FileName: "jan.pdf",
					Metadata: models.StatementMetadata{
						BankName:       "Metro Bank",
						OpeningBalance: decimal.NewNullDecimal(decimal.RequireFromString("1000.00")),
					},
				}
				Expect(db.CreateStatement(s)).To(Succeed())

				got, err := db.GetStatement(s.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.Metadata.BankName).To(Equal("Metro Bank"))
				Expect(got.Metadata.OpeningBalance.Valid).To(BeTrue())
				Expect(got.Metadata.OpeningBalance.Decimal.Equal(decimal.NewFromInt(1000))).To(BeTrue())
				Expect(got.Metadata.ClosingBalance.Valid).To(BeFalse())
			})
		})

		When("the statement does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetStatement(42)
				Expect(err).To(MatchError(models.ErrNotFound))
			})
		})
	})

	Describe("UpdateStatement", func() {
		It("persists the new state", func() {
			s := &models.Statement{FileName: "jan.pdf"}
			Expect(db.CreateStatement(s)).To(Succeed())

			s.Status = models.StatementFailed
			s.ErrorMessage = "reading source: boom"
			s.RetryCount = 2
			Expect(db.UpdateStatement(s)).To(Succeed())

			got, err := db.GetStatement(s.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(models.StatementFailed))
			Expect(got.ErrorMessage).To(Equal("reading source: boom"))
			Expect(got.RetryCount).To(Equal(2))
		})

		It("refuses unknown statements", func() {
			Expect(db.UpdateStatement(&models.Statement{ID: 7})).To(MatchError(models.ErrNotFound))
		})
	})

	Describe("transactions", func() {
		var statement *models.Statement

		BeforeEach(func() {
			statement = &models.Statement{FileName: "jan.pdf"}
			Expect(db.CreateStatement(statement)).To(Succeed())
		})

		When("more than one batch is created", func() {
			var txns []models.Transaction

			BeforeEach(func() {
				txns = make([]models.Transaction, DefaultBatchSize+3)
				for i := range txns {
					txns[i] = transaction(i)
				}
				Expect(db.CreateTransactions(statement.ID, txns)).To(Succeed())
			})

			It("assigns ids in place", func() {
				Expect(txns[0].ID).To(Equal(uint64(1)))
				Expect(txns[DefaultBatchSize+2].ID).To(Equal(uint64(DefaultBatchSize + 3)))
				Expect(txns[DefaultBatchSize].StatementID).To(Equal(statement.ID))
			})

			It("returns them in creation order", func() {
				got, err := db.Transactions(statement.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(DefaultBatchSize + 3))
				Expect(got[0].Description).To(Equal("Payment 0"))
				Expect(got[DefaultBatchSize+2].Description).To(Equal("Payment 502"))
				Expect(got[1].Amount.Equal(decimal.NewFromInt(2))).To(BeTrue())
				Expect(got[1].Balance.Decimal.StringFixed(2)).To(Equal("100.50"))
			})

			It("deletes them all", func() {
				Expect(db.DeleteTransactions(statement.ID)).To(Succeed())
				got, err := db.Transactions(statement.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(BeEmpty())
			})
		})

		It("honours a configured batch size", func() {
			WithBatchSize(2)(db)
			Expect(db.batch).To(Equal(2))
			WithBatchSize(0)(db)
			Expect(db.batch).To(Equal(2))

			txns := []models.Transaction{transaction(0), transaction(1), transaction(2)}
			Expect(db.CreateTransactions(statement.ID, txns)).To(Succeed())
			got, err := db.Transactions(statement.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(3))
			Expect(got[2].ID).To(Equal(uint64(3)))
		})

		It("updates stored transactions", func() {
			txns := []models.Transaction{transaction(0), transaction(1)}
			Expect(db.CreateTransactions(statement.ID, txns)).To(Succeed())

			txns[1].ValidationStatus = models.StatusFailed
			txns[1].ValidationErrors = []string{"amount must be positive"}
			Expect(db.UpdateTransactions(statement.ID, txns[1:])).To(Succeed())

			got, err := db.Transactions(statement.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got[0].ValidationStatus).To(BeEmpty())
			Expect(got[1].ValidationStatus).To(Equal(models.StatusFailed))
			Expect(got[1].ValidationErrors).To(ConsistOf("amount must be positive"))
		})

		It("returns an empty list for a statement without transactions", func() {
			got, err := db.Transactions(statement.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("ignores deleting transactions that were never created", func() {
			Expect(db.DeleteTransactions(statement.ID)).To(Succeed())
		})

		It("rejects transactions for unknown statements", func() {
			Expect(db.CreateTransactions(99, []models.Transaction{transaction(0)})).To(MatchError(models.ErrNotFound))
			_, err := db.Transactions(99)
			Expect(err).To(MatchError(models.ErrNotFound))
		})

		It("rejects updates of unknown transactions", func() {
			Expect(db.CreateTransactions(statement.ID, []models.Transaction{transaction(0)})).To(Succeed())
			bad := transaction(1)
			bad.ID = 50
			Expect(db.UpdateTransactions(statement.ID, []models.Transaction{bad})).To(MatchError(models.ErrNotFound))
		})
	})

	It("reopens an existing database", func() {
		Expect(db.CreateStatement(&models.Statement{FileName: "jan.pdf"})).To(Succeed())
		Expect(db.Close()).To(Succeed())

		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
		list, err := db.ListStatements()
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
	})
})
