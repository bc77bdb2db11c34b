// Package client is the AquaTrace Go SDK.
//
// It provides everything an integration needs to work with an AquaTrace
// node: recording water-quality measurements, tracking shipments,
// checking the safety of a source, and managing ledger roles — all in one
// coherent API.
//
// # Connecting as an enrolled identity (most common case)
//
// After running 'aqua enroll', your credentials live in
// ~/.aqua/credentials.json. Load them in one call:
//
//	c, err := client.NewFromCredentialsFile(
//	    "https://node.aquatrace.example",
//	    os.ExpandEnv("$HOME/.aqua/credentials.json"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Bearer tokens are fetched through the node's token exchange and refreshed
// automatically 60 seconds before expiry.
//
// # Recording a measurement
//
// Measurements use the ledger's fixed-point conventions: pH x100 and
// temperature x10, so pH 7.00 at 25.0 C is:
//
//	rec, err := c.RecordQuality(ctx, client.RecordQualityRequest{
//	    Location:    "reservoir-north",
//	    PH:          700,
//	    TDS:         340,
//	    Turbidity:   2,
//	    Temperature: 250,
//	})
//	fmt.Println(rec.ID, rec.IsSafe)
//
// The caller identity must hold the verifier role or the node rejects the
// request with ErrUnauthorized.
//
// # Tracking a shipment
//
// Shipments must reference a quality record whose verdict is safe:
//
//	ship, err := c.TrackDistribution(ctx, client.TrackDistributionRequest{
//	    Source:      "reservoir-north",
//	    Destination: "district-4",
//	    Quantity:    50000,
//	    QualityRef:  rec.ID,
//	})
//	if errors.Is(err, client.ErrUnsafeSource) {
//	    // the referenced record failed its safety evaluation
//	}
//
// Later, the same distributor confirms the delivery exactly once:
//
//	err = c.ConfirmDelivery(ctx, ship.ID)
//
// # Checking safety before dispatch
//
// LatestSafety returns the stored verdict of the newest record at a
// location. Add WithCacheTTL to avoid hammering the node from a dispatch
// loop:
//
//	c, _ := client.NewFromCredentialsFile(nodeURL, credsPath,
//	    client.WithCacheTTL(30*time.Second),
//	)
//	status, err := c.LatestSafety(ctx, "reservoir-north")
//	if status.Known && status.IsSafe {
//	    // good to dispatch
//	}
//
// # Unauthenticated reads
//
// Reads are public — no credentials are required:
//
//	c, _ := client.New("https://node.aquatrace.example")
//	rec, err := c.GetQuality(ctx, 42)
//
// # Error handling
//
// The node reports rejections with a structured kind, surfaced here as
// sentinel errors: ErrUnauthorized, ErrInvalidParameter,
// ErrInvalidReference, ErrUnsafeSource, and ErrAlreadyConfirmed. Use
// errors.As with *APIError when you need the offending field of a
// validation failure:
//
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Kind == client.KindInvalidParameter {
//	    fmt.Println("bad field:", apiErr.Field)
//	}
package client
