package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Bank struct {
	ID          int          `gorm:"primary_key" json:"id"`
	BankName    string       `gorm:"size:100;not null" json:"bank_name"`
	BankCode    string       `gorm:"size:20;not null;unique" json:"bank_code"`
	CountryCode string       `gorm:"size:2" json:"country_code"`
	SwiftCode   string       `gorm:"size:11" json:"swift_code"`
	IsActive    *bool        `gorm:"not null;default:true" json:"is_active"`
	Branches    []BankBranch `gorm:"foreignKey:BankId" json:"branches,omitempty"`
	CreatedBy   int          `json:"created_by"`
	UpdatedBy   int          `json:"updated_by"`
	CreatedAt   time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type BankBranch struct {
	ID         int           `gorm:"primary_key" json:"id"`
	BankId     int           `gorm:"not null;index:uniq_bank_branch_code,unique,priority:1" json:"bank_id"`
	BranchName string        `gorm:"size:100;not null" json:"branch_name"`
	BranchCode string        `gorm:"size:20;not null;index:uniq_bank_branch_code,unique,priority:2" json:"branch_code"`
	Address    string        `gorm:"type:text" json:"address"`
	IsActive   *bool         `gorm:"not null;default:true" json:"is_active"`
	Accounts   []BankAccount `gorm:"foreignKey:BranchId" json:"accounts,omitempty"`
	CreatedAt  time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type BankAccount struct {
	ID                        int             `gorm:"primary_key" json:"id"`
	BranchId                  int             `gorm:"not null;index" json:"branch_id"`
	AccountNumber             string          `gorm:"size:50;not null;unique" json:"account_number"`
	AccountName               string          `gorm:"size:100;not null" json:"account_name"`
	AccountType               BankAccountType `gorm:"size:20;not null" json:"account_type"`
	CurrencyCode              string          `gorm:"size:3;not null" json:"currency_code"`
	OpeningBalance            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"opening_balance"`
	CurrentBalance            decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"current_balance"`
	CashCombinationId         *int            `json:"cash_combination_id"`
	CashClearingCombinationId *int            `json:"cash_clearing_combination_id"`
	IBAN                      string          `gorm:"column:iban;size:34" json:"iban"`
	IsActive                  *bool           `gorm:"not null;default:true" json:"is_active"`
	IsFrozen                  bool            `gorm:"not null;default:false" json:"is_frozen"`
	CreatedBy                 int             `json:"created_by"`
	UpdatedBy                 int             `json:"updated_by"`
	CreatedAt                 time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBank struct {
	BankName    string `json:"bank_name" validate:"required,max=100"`
	BankCode    string `json:"bank_code" validate:"required,max=20"`
	CountryCode string `json:"country_code" validate:"omitempty,len=2"`
	SwiftCode   string `json:"swift_code" validate:"omitempty,max=11"`
}

type NewBankBranch struct {
	BankId     int    `json:"bank_id" validate:"required"`
	BranchName string `json:"branch_name" validate:"required,max=100"`
	BranchCode string `json:"branch_code" validate:"required,max=20"`
	Address    string `json:"address"`
}

type NewBankAccount struct {
	BranchId                  int             `json:"branch_id" validate:"required"`
	AccountNumber             string          `json:"account_number" validate:"required,max=50"`
	AccountName               string          `json:"account_name" validate:"required,max=100"`
	AccountType               BankAccountType `json:"account_type" validate:"required"`
	CurrencyCode              string          `json:"currency_code" validate:"required,len=3"`
	OpeningBalance            decimal.Decimal `json:"opening_balance"`
	CashCombinationId         *int            `json:"cash_combination_id"`
	CashClearingCombinationId *int            `json:"cash_clearing_combination_id"`
	IBAN                      string          `json:"iban" validate:"omitempty,max=34"`
}

type BankSummary struct {
	BankId        int             `json:"bank_id"`
	BankName      string          `json:"bank_name"`
	BranchCount   int             `json:"branch_count"`
	AccountCount  int             `json:"account_count"`
	TotalBalances []CurrencyTotal `json:"total_balances"`
}

type CurrencyTotal struct {
	CurrencyCode string          `json:"currency_code"`
	Balance      decimal.Decimal `json:"balance"`
}

type BalanceSummary struct {
	AccountId         int             `json:"account_id"`
	AccountNumber     string          `json:"account_number"`
	CurrencyCode      string          `json:"currency_code"`
	OpeningBalance    decimal.Decimal `json:"opening_balance"`
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	NetMovement       decimal.Decimal `json:"net_movement"`
	UnreconciledCount int64           `json:"unreconciled_count"`
	IsFrozen          bool            `json:"is_frozen"`
}

/* caches: BankHierarchy */

const bankHierarchyCacheKey = "BankHierarchy"

func (a BankAccount) Active() bool {
	return a.IsActive == nil || *a.IsActive
}

// applyBalanceChange moves the current balance. Decreases below zero are
// refused.
func (a *BankAccount) applyBalanceChange(amount decimal.Decimal, increase bool) error {
	if amount.IsNegative() {
		return utils.NewValidationError("amount cannot be negative")
	}
	if increase {
		a.CurrentBalance = a.CurrentBalance.Add(amount)
		return nil
	}
	if err := a.CheckSufficientBalance(amount); err != nil {
		return err
	}
	a.CurrentBalance = a.CurrentBalance.Sub(amount)
	return nil
}

func (a BankAccount) CheckSufficientBalance(amount decimal.Decimal) error {
	if a.CurrentBalance.LessThan(amount) {
		return utils.NewValidationError("insufficient balance in account %s: available %s, required %s",
			a.AccountNumber, a.CurrentBalance.StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

func CreateBank(ctx context.Context, input *NewBank) (*Bank, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	bank := Bank{
		BankName:    input.BankName,
		BankCode:    strings.ToUpper(input.BankCode),
		CountryCode: strings.ToUpper(input.CountryCode),
		SwiftCode:   strings.ToUpper(input.SwiftCode),
		IsActive:    utils.NewTrue(),
	}
	err := config.GetDB().WithContext(ctx).Create(&bank).Error
	if isDuplicateKeyError(err) {
		return nil, utils.NewFieldValidationError("bank code already exists", map[string]string{"bank_code": "unique"})
	}
	if err != nil {
		return nil, err
	}
	config.RemoveRedisKey(bankHierarchyCacheKey)
	return &bank, nil
}

func UpdateBank(ctx context.Context, id int, input *NewBank) (*Bank, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	bank, err := fetchModel[Bank](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	err = config.GetDB().WithContext(ctx).Model(bank).Updates(map[string]interface{}{
		"BankName":    input.BankName,
		"BankCode":    strings.ToUpper(input.BankCode),
		"CountryCode": strings.ToUpper(input.CountryCode),
		"SwiftCode":   strings.ToUpper(input.SwiftCode),
	}).Error
	if isDuplicateKeyError(err) {
		return nil, utils.NewFieldValidationError("bank code already exists", map[string]string{"bank_code": "unique"})
	}
	if err != nil {
		return nil, err
	}
	config.RemoveRedisKey(bankHierarchyCacheKey)
	return bank, nil
}

func GetBank(ctx context.Context, id int) (*Bank, error) {
	return fetchModel[Bank](ctx, nil, id, "Branches")
}

func ListBanks(ctx context.Context, activeOnly bool) ([]*Bank, error) {
	q := config.GetDB().WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var banks []*Bank
	err := q.Order("bank_name").Find(&banks).Error
	return banks, err
}

// SetBankActive toggles a bank. Deactivating fails while any of its accounts
// is active.
func SetBankActive(ctx context.Context, id int, active bool) (*Bank, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		bank, err := fetchModelForUpdate[Bank](ctx, tx, id)
		if err != nil {
			return err
		}
		if !active {
			var count int64
			if err := tx.Model(&BankAccount{}).
				Joins("JOIN bank_branches ON bank_branches.id = bank_accounts.branch_id").
				Where("bank_branches.bank_id = ? AND bank_accounts.is_active = ?", id, true).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return utils.NewValidationError("bank %s has %d active accounts", bank.BankCode, count)
			}
		}
		return tx.Model(bank).Update("IsActive", active).Error
	})
	if err != nil {
		return nil, err
	}
	config.RemoveRedisKey(bankHierarchyCacheKey)
	return GetBank(ctx, id)
}

func GetBankSummary(ctx context.Context, id int) (*BankSummary, error) {
	bank, err := fetchModel[Bank](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	summary := BankSummary{BankId: bank.ID, BankName: bank.BankName}
	var branches, accounts int64
	if err := db.Model(&BankBranch{}).Where("bank_id = ?", id).Count(&branches).Error; err != nil {
		return nil, err
	}
	accountsOfBank := db.Model(&BankAccount{}).
		Joins("JOIN bank_branches ON bank_branches.id = bank_accounts.branch_id").
		Where("bank_branches.bank_id = ?", id)
	if err := accountsOfBank.Session(&gorm.Session{}).Count(&accounts).Error; err != nil {
		return nil, err
	}
	if err := accountsOfBank.Session(&gorm.Session{}).
		Select("bank_accounts.currency_code, SUM(bank_accounts.current_balance) AS balance").
		Group("bank_accounts.currency_code").
		Order("bank_accounts.currency_code").
		Scan(&summary.TotalBalances).Error; err != nil {
		return nil, err
	}
	summary.BranchCount = int(branches)
	summary.AccountCount = int(accounts)
	return &summary, nil
}

func CreateBankBranch(ctx context.Context, input *NewBankBranch) (*BankBranch, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	bank, err := fetchModel[Bank](ctx, nil, input.BankId)
	if err != nil {
		return nil, err
	}
	if bank.IsActive != nil && !*bank.IsActive {
		return nil, utils.NewValidationError("bank %s is inactive", bank.BankCode)
	}
	branch := BankBranch{
		BankId:     input.BankId,
		BranchName: input.BranchName,
		BranchCode: strings.ToUpper(input.BranchCode),
		Address:    input.Address,
		IsActive:   utils.NewTrue(),
	}
	err = config.GetDB().WithContext(ctx).Create(&branch).Error
	if isDuplicateKeyError(err) {
		return nil, utils.NewFieldValidationError("branch code already exists for this bank", map[string]string{"branch_code": "unique"})
	}
	if err != nil {
		return nil, err
	}
	config.RemoveRedisKey(bankHierarchyCacheKey)
	return &branch, nil
}

func UpdateBankBranch(ctx context.Context, id int, input *NewBankBranch) (*BankBranch, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}
	branch, err := fetchModel[BankBranch](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if input.BankId != branch.BankId {
		return nil, utils.NewValidationError("a branch cannot move to another bank")
	}
	err = config.GetDB().WithContext(ctx).Model(branch).Updates(map[string]interface{}{
		"BranchName": input.BranchName,
		"BranchCode": strings.ToUpper(input.BranchCode),
		"Address":    input.Address,
	}).Error
	if isDuplicateKeyError(err) {
		return nil, utils.NewFieldValidationError("branch code already exists for this bank", map[string]string{"branch_code": "unique"})
	}
	if err != nil {
		return nil, err
	}
	config.RemoveRedisKey(bankHierarchyCacheKey)
	return branch, nil
}

func ListBankBranches(ctx context.Context, bankId int) ([]*BankBranch, error) {
	var branches []*BankBranch
	err := config.GetDB().WithContext(ctx).Where("bank_id = ?", bankId).Order("branch_name").Find(&branches).Error
	return branches, err
}

func SetBankBranchActive(ctx context.Context, id int, active bool) (*BankBranch, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		branch, err := fetchModelForUpdate[BankBranch](ctx, tx, id)
		if err != nil {
			return err
		}
		if !active {
			var count int64
			if err := tx.Model(&BankAccount{}).Where("branch_id = ? AND is_active = ?", id, true).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return utils.NewValidationError("branch %s has %d active accounts", branch.BranchCode, count)
			}
		}
		return tx.Model(branch).Update("IsActive", active).Error
	})
	if err != nil {
		return nil, err
	}
	config.RemoveRedisKey(bankHierarchyCacheKey)
	return fetchModel[BankBranch](ctx, nil, id)
}

func (input *NewBankAccount) validate(ctx context.Context, tx *gorm.DB) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if !input.AccountType.IsValid() {
		return utils.NewFieldValidationError("invalid account type", map[string]string{"account_type": "oneof"})
	}
	branch, err := fetchModel[BankBranch](ctx, tx, input.BranchId)
	if err != nil {
		return err
	}
	if branch.IsActive != nil && !*branch.IsActive {
		return utils.NewValidationError("branch %s is inactive", branch.BranchCode)
	}
	for _, id := range []*int{input.CashCombinationId, input.CashClearingCombinationId} {
		if id == nil {
			continue
		}
		if _, err := fetchModel[SegmentCombination](ctx, tx, *id); err != nil {
			return err
		}
	}
	return nil
}

func CreateBankAccount(ctx context.Context, input *NewBankAccount) (*BankAccount, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, nil); err != nil {
		return nil, err
	}
	account := BankAccount{
		BranchId:                  input.BranchId,
		AccountNumber:             strings.TrimSpace(input.AccountNumber),
		AccountName:               input.AccountName,
		AccountType:               input.AccountType,
		CurrencyCode:              strings.ToUpper(input.CurrencyCode),
		OpeningBalance:            input.OpeningBalance,
		CurrentBalance:            input.OpeningBalance,
		CashCombinationId:         input.CashCombinationId,
		CashClearingCombinationId: input.CashClearingCombinationId,
		IBAN:                      strings.ToUpper(strings.ReplaceAll(input.IBAN, " ", "")),
		IsActive:                  utils.NewTrue(),
	}
	err := config.GetDB().WithContext(ctx).Create(&account).Error
	if isDuplicateKeyError(err) {
		return nil, utils.NewFieldValidationError("account number already exists", map[string]string{"account_number": "unique"})
	}
	if err != nil {
		return nil, err
	}
	config.RemoveRedisKey(bankHierarchyCacheKey)
	return &account, nil
}

// UpdateBankAccount edits descriptive fields and GL links. Balances only move
// through payments.
func UpdateBankAccount(ctx context.Context, id int, input *NewBankAccount) (*BankAccount, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, nil); err != nil {
		return nil, err
	}
	account, err := fetchModel[BankAccount](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(account.CurrencyCode, input.CurrencyCode) {
		var used int64
		if err := config.GetDB().WithContext(ctx).Model(&Payment{}).Where("bank_account_id = ?", id).Count(&used).Error; err != nil {
			return nil, err
		}
		if used > 0 {
			return nil, utils.NewValidationError("currency cannot change on an account with payments")
		}
	}
	err = config.GetDB().WithContext(ctx).Model(account).Updates(map[string]interface{}{
		"BranchId":                  input.BranchId,
		"AccountNumber":             strings.TrimSpace(input.AccountNumber),
		"AccountName":               input.AccountName,
		"AccountType":               input.AccountType,
		"CurrencyCode":              strings.ToUpper(input.CurrencyCode),
		"CashCombinationId":         input.CashCombinationId,
		"CashClearingCombinationId": input.CashClearingCombinationId,
		"IBAN":                      strings.ToUpper(strings.ReplaceAll(input.IBAN, " ", "")),
	}).Error
	if isDuplicateKeyError(err) {
		return nil, utils.NewFieldValidationError("account number already exists", map[string]string{"account_number": "unique"})
	}
	if err != nil {
		return nil, err
	}
	config.RemoveRedisKey(bankHierarchyCacheKey)
	return fetchModel[BankAccount](ctx, nil, id)
}

func GetBankAccount(ctx context.Context, id int) (*BankAccount, error) {
	return fetchModel[BankAccount](ctx, nil, id)
}

func ListBankAccounts(ctx context.Context, branchId int, activeOnly bool) ([]*BankAccount, error) {
	q := config.GetDB().WithContext(ctx)
	if branchId > 0 {
		q = q.Where("branch_id = ?", branchId)
	}
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var accounts []*BankAccount
	err := q.Order("account_number").Limit(config.ListLimit).Find(&accounts).Error
	return accounts, err
}

func SetBankAccountActive(ctx context.Context, id int, active bool) (*BankAccount, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	account, err := fetchModel[BankAccount](ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if err := config.GetDB().WithContext(ctx).Model(account).Update("IsActive", active).Error; err != nil {
		return nil, err
	}
	config.RemoveRedisKey(bankHierarchyCacheKey)
	return account, nil
}

// FreezeBankAccount blocks balance movements until unfrozen.
func FreezeBankAccount(ctx context.Context, id int) (*BankAccount, error) {
	return setBankAccountFrozen(ctx, id, true)
}

func UnfreezeBankAccount(ctx context.Context, id int) (*BankAccount, error) {
	return setBankAccountFrozen(ctx, id, false)
}

func setBankAccountFrozen(ctx context.Context, id int, frozen bool) (*BankAccount, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	err := runInTx(ctx, func(tx *gorm.DB) error {
		account, err := fetchModelForUpdate[BankAccount](ctx, tx, id)
		if err != nil {
			return err
		}
		if account.IsFrozen == frozen {
			if frozen {
				return utils.ConflictError("account %s is already frozen", account.AccountNumber)
			}
			return utils.ConflictError("account %s is not frozen", account.AccountNumber)
		}
		return tx.Model(account).Update("IsFrozen", frozen).Error
	})
	if err != nil {
		return nil, err
	}
	return fetchModel[BankAccount](ctx, nil, id)
}

// updateBankBalance locks the account row and applies the change.
func updateBankBalance(ctx context.Context, tx *gorm.DB, accountId int, amount decimal.Decimal, increase bool) (*BankAccount, error) {
	account, err := fetchModelForUpdate[BankAccount](ctx, tx, accountId)
	if err != nil {
		return nil, err
	}
	if !account.Active() {
		return nil, utils.NewValidationError("bank account %s is inactive", account.AccountNumber)
	}
	if account.IsFrozen {
		return nil, utils.NewValidationError("bank account %s is frozen", account.AccountNumber)
	}
	if err := account.applyBalanceChange(amount, increase); err != nil {
		return nil, err
	}
	if err := tx.Model(account).Update("CurrentBalance", account.CurrentBalance).Error; err != nil {
		return nil, err
	}
	return account, nil
}

func UpdateBankBalance(ctx context.Context, accountId int, amount decimal.Decimal, increase bool) (*BankAccount, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	var account *BankAccount
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		account, err = updateBankBalance(ctx, tx, accountId, amount, increase)
		return err
	})
	return account, err
}

func GetBalanceSummary(ctx context.Context, accountId int) (*BalanceSummary, error) {
	account, err := fetchModel[BankAccount](ctx, nil, accountId)
	if err != nil {
		return nil, err
	}
	var unreconciled int64
	if err := config.GetDB().WithContext(ctx).Model(&BankStatementLine{}).
		Joins("JOIN bank_statements ON bank_statements.id = bank_statement_lines.statement_id").
		Where("bank_statements.bank_account_id = ? AND bank_statement_lines.reconciliation_status <> ?", accountId, ReconciliationStatusReconciled).
		Count(&unreconciled).Error; err != nil {
		return nil, err
	}
	return &BalanceSummary{
		AccountId:         account.ID,
		AccountNumber:     account.AccountNumber,
		CurrencyCode:      account.CurrencyCode,
		OpeningBalance:    account.OpeningBalance,
		CurrentBalance:    account.CurrentBalance,
		NetMovement:       account.CurrentBalance.Sub(account.OpeningBalance),
		UnreconciledCount: unreconciled,
		IsFrozen:          account.IsFrozen,
	}, nil
}

// GetBankHierarchy returns active banks with their branches and accounts.
func GetBankHierarchy(ctx context.Context) ([]*Bank, error) {
	var banks []*Bank
	exists, err := config.GetRedisObject(bankHierarchyCacheKey, &banks)
	if err != nil {
		return nil, err
	}
	if exists {
		return banks, nil
	}
	err = config.GetDB().WithContext(ctx).
		Where("is_active = ?", true).
		Preload("Branches", "is_active = ?", true).
		Preload("Branches.Accounts", "is_active = ?", true).
		Order("bank_name").
		Find(&banks).Error
	if err != nil {
		return nil, err
	}
	if err := config.SetRedisObject(bankHierarchyCacheKey, &banks, config.CacheLifespan()); err != nil {
		return nil, fmt.Errorf("cache bank hierarchy: %w", err)
	}
	return banks, nil
}
