package order

import (
	dominv "orderflow/internal/domain/inventory"
	dompay "orderflow/internal/domain/payment"
)

// InventoryPort is the inventory collaborator the saga drives. Resilience
// decoration (retry, circuit breaking) happens behind this interface.
type InventoryPort interface {
	dominv.Store
}

// PaymentPort is the payment collaborator the saga drives.
type PaymentPort interface {
	dompay.Gateway
}
