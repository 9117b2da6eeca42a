package sales

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"market-backend/internal/models"
	"market-backend/internal/stock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEmptyCart         = errors.New("satış en az bir kalem içermelidir")
	ErrInsufficientStock = errors.New("yetersiz stok")
	ErrProductNotFound   = errors.New("ürün bulunamadı")
	ErrProductInactive   = errors.New("ürün pasif durumda, satılamaz")
	ErrBranchMismatch    = errors.New("ürün bu şubeye ait değil")
	ErrInvalidQuantity   = errors.New("kalem miktarı pozitif olmalıdır")
	ErrInvalidPayment    = errors.New("geçersiz ödeme")
	ErrSaleNotFound      = errors.New("satış bulunamadı")
	ErrAlreadyCancelled  = errors.New("satış zaten iptal edilmiş")
)

type SaleItemInput struct {
	ProductID uint
	Quantity  int
}

type CreateSaleInput struct {
	BranchID      uint
	SellerID      uint
	ClientID      *uint
	PaymentMethod models.PaymentMethod
	AmountPaid    decimal.Decimal
	Items         []SaleItemInput
}

// newSaleCode: "SAT-YYYYMMDD-XXXXXX" formatında benzersiz satış kodu üretir
func newSaleCode(now time.Time) string {
	fragment := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("SAT-%s-%s", now.Format("20060102"), fragment)
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// CreateSale: satışı tek transaction içinde oluşturur. Kalem doğrulama,
// toplam hesaplama, satış kaydı ve stok çıkış hareketleri ya hep birlikte
// başarılı olur ya da hiçbiri yazılmaz. Satışta yetersiz stok motor
// çağrılmadan reddedilir, sıfıra kırpma manuel çıkışlara özgüdür.
func CreateSale(db *gorm.DB, in CreateSaleInput) (*models.Sale, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptyCart
	}
	switch in.PaymentMethod {
	case models.PaymentCash, models.PaymentCard, models.PaymentTransfer:
	default:
		return nil, ErrInvalidPayment
	}
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	// Aynı ürün birden çok kalemde geçebilir; her kalem ayrı satır ve ayrı
	// defter hareketi olur, kilit yine ürün başına bir kez alınır.
	// Kilitleri her zaman aynı sırada al, deadlock riskini azaltır
	lockOrder := make([]uint, 0, len(in.Items))
	seen := make(map[uint]bool, len(in.Items))
	for _, item := range in.Items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			lockOrder = append(lockOrder, item.ProductID)
		}
	}
	sort.Slice(lockOrder, func(i, j int) bool { return lockOrder[i] < lockOrder[j] })

	var sale *models.Sale
	run := func() error {
		return db.Transaction(func(tx *gorm.DB) error {
			products := make(map[uint]*models.Product, len(lockOrder))
			remaining := make(map[uint]int, len(lockOrder))
			for _, pid := range lockOrder {
				var p models.Product
				if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					First(&p, pid).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return fmt.Errorf("%w (id=%d)", ErrProductNotFound, pid)
					}
					return err
				}
				if p.BranchID != in.BranchID {
					return fmt.Errorf("%w: %s", ErrBranchMismatch, p.Name)
				}
				if !p.IsActive {
					return fmt.Errorf("%w: %s", ErrProductInactive, p.Name)
				}
				products[pid] = &p
				remaining[pid] = p.Stock
			}

			// Kalem bazında doğrulama ve toplamlar: her satır kilitli stoğun
			// kalanına karşı kontrol edilir, KDV satır bazında yuvarlanır
			net := decimal.Zero
			tax := decimal.Zero
			items := make([]models.SaleProduct, 0, len(in.Items))
			for _, item := range in.Items {
				p := products[item.ProductID]
				if remaining[item.ProductID] < item.Quantity {
					return fmt.Errorf("%w: %s (stok=%d, istenen=%d)", ErrInsufficientStock, p.Name, remaining[item.ProductID], item.Quantity)
				}
				remaining[item.ProductID] -= item.Quantity

				subtotal := roundMoney(p.SalePrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
				lineTax := roundMoney(subtotal.Mul(p.TaxRate).Div(decimal.NewFromInt(100)))
				net = net.Add(subtotal)
				tax = tax.Add(lineTax)
				items = append(items, models.SaleProduct{
					ProductID: item.ProductID,
					Quantity:  item.Quantity,
					Price:     p.SalePrice,
					Subtotal:  subtotal,
				})
			}
			total := net.Add(tax)

			// Ödeme kuralları: nakitte üstü para olur, kart/havale toplam
			// tutar üzerinden kaydedilir
			change := decimal.Zero
			paid := roundMoney(in.AmountPaid)
			if in.PaymentMethod == models.PaymentCash {
				if paid.LessThan(total) {
					return fmt.Errorf("%w: alınan tutar toplamın altında (toplam=%s, alınan=%s)", ErrInvalidPayment, total, paid)
				}
				change = paid.Sub(total)
			} else {
				paid = total
			}

			now := time.Now()
			s := models.Sale{
				Code:          newSaleCode(now),
				BranchID:      in.BranchID,
				ClientID:      in.ClientID,
				SellerID:      in.SellerID,
				Net:           net,
				Tax:           tax,
				Total:         total,
				AmountPaid:    paid,
				ChangeAmount:  change,
				PaymentMethod: in.PaymentMethod,
				Date:          now,
				Status:        models.SaleCompleted,
				Items:         items,
			}

			// Kod çakışırsa bir kez yeniden üret
			if err := tx.Create(&s).Error; err != nil {
				if isUniqueViolation(err) {
					s.ID = 0
					s.Code = newSaleCode(now)
					for i := range s.Items {
						s.Items[i].ID = 0
					}
					if err := tx.Create(&s).Error; err != nil {
						return err
					}
				} else {
					return err
				}
			}

			// Her kalem için bir stok çıkışı; motor defteri ve product.stock'u yazar
			for _, item := range in.Items {
				if _, err := stock.ApplyMovementTx(tx, stock.MovementInput{
					ProductID:    item.ProductID,
					UserID:       in.SellerID,
					BranchID:     in.BranchID,
					Type:         models.MovementOut,
					Quantity:     item.Quantity,
					Reference:    "Satış " + s.Code,
					MovementDate: now,
				}); err != nil {
					return err
				}
			}

			sale = &s
			return nil
		})
	}

	err := run()
	if err != nil && isSerializationError(err) {
		err = run()
	}
	if err != nil {
		if isSerializationError(err) {
			return nil, fmt.Errorf("%w: %v", stock.ErrConcurrency, err)
		}
		return nil, err
	}
	return sale, nil
}

// CancelSale: tamamlanmış satışı iptal eder. Satış durumunu cancelled'a
// çeker ve her kalem için telafi edici "in" hareketi yazar. Defter
// append-only olduğu için orijinal çıkış kayıtları yerinde kalır.
func CancelSale(db *gorm.DB, saleID, userID uint) (*models.Sale, error) {
	var sale *models.Sale
	run := func() error {
		return db.Transaction(func(tx *gorm.DB) error {
			var s models.Sale
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Preload("Items").
				First(&s, saleID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrSaleNotFound
				}
				return err
			}
			if s.Status == models.SaleCancelled {
				return ErrAlreadyCancelled
			}

			now := time.Now()
			for _, item := range s.Items {
				if _, err := stock.ApplyMovementTx(tx, stock.MovementInput{
					ProductID:    item.ProductID,
					UserID:       userID,
					BranchID:     s.BranchID,
					Type:         models.MovementIn,
					Quantity:     item.Quantity,
					Reference:    "Satış iptali " + s.Code,
					MovementDate: now,
					// Ürün satıştan sonra silinmiş/pasife alınmış olabilir,
					// telafi hareketi yine de deftere girmek zorunda
					AllowTrashed: true,
				}); err != nil {
					return err
				}
			}

			if err := tx.Model(&models.Sale{}).
				Where("id = ?", s.ID).
				Update("status", models.SaleCancelled).Error; err != nil {
				return err
			}
			s.Status = models.SaleCancelled

			sale = &s
			return nil
		})
	}

	err := run()
	if err != nil && isSerializationError(err) {
		err = run()
	}
	if err != nil {
		if isSerializationError(err) {
			return nil, fmt.Errorf("%w: %v", stock.ErrConcurrency, err)
		}
		return nil, err
	}
	return sale, nil
}
