/*
Package wallet provides the stored-value wallet and its ledger.

The wallet service handles all balance-affecting operations:
- Get-or-create of a user's wallet
- Gateway top-ups (checkout, verification, saved cards)
- Order debits and refunds
- Referral point withdrawals into the wallet
- Transaction history and balance visibility

Every mutation runs the same sequence inside one store transaction: lock the
wallet row, append a completed transaction, then write the new balance
computed from the locked read. Notifications and wallet.updated events
follow the commit and never fail the operation.

Usage:

	svc := wallet.NewService(wallet.Dependencies{
	    Store:     repositories.NewLedgerStore(db),
	    Gateway:   gatewayClient,
	    Referrals: referralService,
	    Notifier:  notificationService,
	}, wallet.Config{DefaultCurrency: "NGN"})

	w, err := svc.GetOrCreateWallet(ctx, identity)
	res, err := svc.CompleteTopUp(ctx, w.ID, amount, reference, gateway.StatusSuccess)
	res, err = svc.DebitForOrder(ctx, w.ID, amount, orderRef, "Order #1001")

Idempotency:

A completed transaction is unique per (wallet, reference). Repeating a
top-up, debit or refund with the same reference returns the original
transaction with Duplicate set and changes nothing. Reusing a reference for
a different type or amount fails with ErrDuplicateTransaction.

Gateway references are bound to the wallet that opened them through the
charge's wallet_id metadata; ReconcileTopUp refuses a reference verified for
any other wallet.

Error Handling:

Operations return the domain errors from internal/errors:
- ErrValidation: bad amount, reference or identity
- ErrInsufficientBalance: debit larger than the balance
- ErrPaymentNotSuccessful: the gateway did not report success
- ErrNotFound: wallet, card or referral account absent
- ErrGatewayUnavailable: verification failed after all retries
- ErrDuplicateTransaction: reference already used by another operation

Referral withdrawals:

Withdrawn points are recorded as a pending credit before the wallet is
touched. The credit uses the reference REF-<pending reference>, so Reconcile
can replay unsettled withdrawals without double crediting.
*/
package wallet
