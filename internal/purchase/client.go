package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"biztomate-api/internal/appstore"
	"biztomate-api/internal/catalog"
	"biztomate-api/internal/entitlement"
	"biztomate-api/pkg/logging"
)

// Client drives the purchase flow for one user. Connection state is owned
// explicitly by the instance rather than by package-level booleans, so two
// clients never share hidden state and tests need no process-wide setup.
type Client struct {
	store  PlatformStore
	cache  ReceiptCache
	userID string

	mu        sync.Mutex
	connected bool
	products  map[string]bool
	inflight  map[string]*purchaseCall
}

// purchaseCall is an in-flight purchase that concurrent duplicate requests
// for the same product coalesce onto.
type purchaseCall struct {
	done    chan struct{}
	receipt *Receipt
	err     error
}

// NewClient creates a purchase client for one user.
func NewClient(store PlatformStore, cache ReceiptCache, userID string) *Client {
	return &Client{
		store:    store,
		cache:    cache,
		userID:   userID,
		products: make(map[string]bool),
		inflight: make(map[string]*purchaseCall),
	}
}

// Connect initializes the store connection and fetches the product listing
// for the catalog. Purchase requires a prior successful Connect.
func (c *Client) Connect(ctx context.Context) error {
	available, err := c.store.FetchProducts(ctx, catalog.StoreProductIDs())
	if err != nil {
		return classifyStoreError(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = make(map[string]bool, len(available))
	for _, id := range available {
		c.products[id] = true
	}
	c.connected = true
	return nil
}

// Connected reports whether the store connection has been initialized.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Purchase buys one product and returns its receipt. The receipt is written
// to the cache before Purchase returns success, so a crash after the store
// charge can never lose the transaction. Finalization with the store happens
// only after the cache write.
//
// Purchase is single-flight per product: a concurrent duplicate request for
// the same product id waits for the in-flight call and receives its result
// instead of issuing a second store request.
func (c *Client) Purchase(ctx context.Context, productID string) (*Receipt, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	if !c.products[productID] {
		c.mu.Unlock()
		return nil, &PurchaseError{Code: ErrProductUnavailable, Raw: "product not in fetched listing: " + productID}
	}
	if call, ok := c.inflight[productID]; ok {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.receipt, call.err
		case <-ctx.Done():
			// The in-flight purchase keeps running; only this waiter gives
			// up, so the cache still receives the receipt when it lands.
			code := ErrUserCancelled
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				code = ErrNetwork
			}
			return nil, &PurchaseError{Code: code, Raw: ctx.Err().Error(), Err: ctx.Err()}
		}
	}
	call := &purchaseCall{done: make(chan struct{})}
	c.inflight[productID] = call
	c.mu.Unlock()

	receipt, err := c.doPurchase(ctx, productID)

	call.receipt, call.err = receipt, err
	c.mu.Lock()
	delete(c.inflight, productID)
	c.mu.Unlock()
	close(call.done)

	return receipt, err
}

func (c *Client) doPurchase(ctx context.Context, productID string) (*Receipt, error) {
	tx, err := c.store.Purchase(ctx, productID)
	if err != nil {
		// Cancellation and every other store failure leaves the cache
		// untouched: nothing was charged, or the store will redeliver.
		return nil, classifyStoreError(err)
	}

	receipt := receiptFromTransaction(tx)

	// The durable cache write must complete before this function returns
	// success. Finalizing first would let a crash lose a charged purchase.
	if err := c.cache.Put(ctx, c.userID, receipt); err != nil {
		return nil, fmt.Errorf("purchase charged but receipt could not be cached: %w", err)
	}

	if err := c.store.Finish(ctx, tx.TransactionID); err != nil {
		// The receipt is durable; the store will redeliver and the cache
		// dedupes on transaction id, so this is not a purchase failure.
		logging.Errorf("Failed to finalize transaction %s: %v", tx.TransactionID, err)
	} else if err := c.cache.MarkFinalized(ctx, tx.TransactionID); err != nil {
		logging.Errorf("Failed to record finalization of %s: %v", tx.TransactionID, err)
	}

	return &receipt, nil
}

// Restore re-enumerates the user's historical purchases and caches every
// receipt. Zero receipts is success, not an error.
func (c *Client) Restore(ctx context.Context) ([]Receipt, error) {
	txs, err := c.store.Restore(ctx)
	if err != nil {
		return nil, classifyStoreError(err)
	}

	receipts := make([]Receipt, 0, len(txs))
	for i := range txs {
		receipt := receiptFromTransaction(&txs[i])
		if err := c.cache.Put(ctx, c.userID, receipt); err != nil {
			return nil, fmt.Errorf("failed to cache restored receipt %s: %w", receipt.TransactionID, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}

// Validator turns one receipt blob into one verification result. The single
// implementation is the gateway client; the purchase and restore flows share
// it so the environment-fallback protocol exists in exactly one place.
type Validator interface {
	Validate(ctx context.Context, receiptBlob string) (*appstore.VerificationResult, error)
}

// PurchaseOutcome is the result of a purchase plus its validation.
// PendingVerification is set when the store charged the user but the
// validation call failed on the network: the purchase did succeed, the
// receipt stays cached, and verification will be retried later. The UI must
// not report such a purchase as failed.
type PurchaseOutcome struct {
	Receipt             *Receipt
	Entitlement         entitlement.Entitlement
	PendingVerification bool
}

// PurchaseAndValidate buys a product, validates the receipt through the
// gateway and resolves the entitlement.
func (c *Client) PurchaseAndValidate(ctx context.Context, v Validator, productID string, now time.Time) (*PurchaseOutcome, error) {
	receipt, err := c.Purchase(ctx, productID)
	if err != nil {
		return nil, err
	}

	result, err := v.Validate(ctx, receipt.ReceiptBlob)
	if err != nil {
		if retryableValidation(err) {
			logging.Errorf("Receipt %s charged but not yet verified: %v", receipt.TransactionID, err)
			return &PurchaseOutcome{Receipt: receipt, Entitlement: entitlement.Free(), PendingVerification: true}, nil
		}
		return nil, err
	}

	ent := entitlement.Resolve([]*appstore.VerificationResult{result}, now)
	return &PurchaseOutcome{Receipt: receipt, Entitlement: ent}, nil
}

// RestoreOutcome is the reduction of a restore run. Failed counts receipts
// whose validation leg failed on the network; the entitlement still reflects
// every receipt that validated, so a partial restore is a partial success
// rather than a discard.
type RestoreOutcome struct {
	Entitlement entitlement.Entitlement
	Restored    int
	Failed      int
}

// RestoreEntitlement enumerates historical receipts, validates each one
// through the shared gateway client and reduces the results to the best
// entitlement the user holds. Validations run sequentially; a semantically
// invalid receipt contributes nothing, a network-failed leg is counted as
// failed and retried another day.
func (c *Client) RestoreEntitlement(ctx context.Context, v Validator, now time.Time) (*RestoreOutcome, error) {
	receipts, err := c.Restore(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]*appstore.VerificationResult, 0, len(receipts))
	failed := 0
	for _, receipt := range receipts {
		result, err := v.Validate(ctx, receipt.ReceiptBlob)
		if err != nil {
			if retryableValidation(err) {
				failed++
			} else {
				logging.Infof("Receipt %s is not valid, skipping: %v", receipt.TransactionID, err)
			}
			continue
		}
		results = append(results, result)
	}

	return &RestoreOutcome{
		Entitlement: entitlement.Resolve(results, now),
		Restored:    len(receipts),
		Failed:      failed,
	}, nil
}

// retryableValidation reports whether a validation failure is transient
// (network failure or a retryable upstream status) rather than a verdict on
// the receipt itself.
func retryableValidation(err error) bool {
	var ne *appstore.NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var ve *appstore.VerificationError
	if errors.As(err, &ve) {
		return ve.Retryable()
	}
	return false
}
