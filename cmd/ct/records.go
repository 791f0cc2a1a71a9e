package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/cafetrace/internal/ledger"
	"github.com/alfredjeanlab/cafetrace/internal/model"
)

var qcCmd = &cobra.Command{
	Use:     "qc",
	Short:   "Record and list quality-control results",
	GroupID: "records",
}

var qcRecordCmd = &cobra.Command{
	Use:   "record <microlot-id>",
	Short: "Record a lab result and append its QUALITY_CONTROL block",
	Long: `Record a quality-control result for a microlot.

PHYSICAL tests are judged on --moisture and --defects, SENSORY tests on
--sca, and FULL tests on both. A missing measurement fails its check.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		testType, _ := cmd.Flags().GetString("type")
		tester, _ := cmd.Flags().GetString("tester")
		notes, _ := cmd.Flags().GetString("notes")
		date, err := optionalDate(cmd, "date")
		if err != nil {
			return err
		}
		if tester == "" {
			tester = actor
		}

		in := &ledger.QualityInput{
			MicrolotID:   args[0],
			TestType:     model.TestType(eventTypeArg(testType)),
			Measurements: measurementsFromFlags(cmd),
			TesterID:     tester,
			TestDate:     date,
			Notes:        notes,
		}
		rec, err := ledgerClient.RecordQualityControl(context.Background(), in)
		if err != nil {
			return fmt.Errorf("recording quality control: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, rec)
		}
		printQualityRecord(out, rec)
		return nil
	},
}

func measurementsFromFlags(cmd *cobra.Command) model.Measurements {
	m := model.Measurements{
		MoisturePct: optionalFloat(cmd, "moisture"),
		Density:     optionalFloat(cmd, "density"),
		Aroma:       optionalFloat(cmd, "aroma"),
		Acidity:     optionalFloat(cmd, "acidity"),
		Body:        optionalFloat(cmd, "body"),
		Flavor:      optionalFloat(cmd, "flavor"),
		SCAScore:    optionalFloat(cmd, "sca"),
	}
	if cmd.Flags().Changed("defects") {
		d, _ := cmd.Flags().GetInt("defects")
		m.Defects = &d
	}
	return m
}

var qcListCmd = &cobra.Command{
	Use:   "list <microlot-id>",
	Short: "List a microlot's quality-control records, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := ledgerClient.ListQualityRecords(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("listing quality records: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, records)
		}
		printQualityRecords(out, records)
		return nil
	},
}

var certCmd = &cobra.Command{
	Use:     "cert",
	Short:   "Attach, revoke and list certifications",
	GroupID: "records",
}

var certAttachCmd = &cobra.Command{
	Use:   "attach <microlot-id>",
	Short: "Attach a certification and append its CERTIFICATION block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		certType, _ := cmd.Flags().GetString("type")
		body, _ := cmd.Flags().GetString("issuer")
		number, _ := cmd.Flags().GetString("number")
		issued, _ := cmd.Flags().GetString("issued")
		expires, _ := cmd.Flags().GetString("expires")

		issueDate, err := parseDate(issued)
		if err != nil {
			return fmt.Errorf("--issued: %w", err)
		}
		expiryDate, err := parseDate(expires)
		if err != nil {
			return fmt.Errorf("--expires: %w", err)
		}

		in := &ledger.CertificationInput{
			MicrolotID:        args[0],
			Type:              certType,
			IssuingBody:       body,
			CertificateNumber: number,
			IssueDate:         issueDate,
			ExpiryDate:        expiryDate,
			ActorID:           actor,
		}
		rec, err := ledgerClient.AttachCertification(context.Background(), in)
		if err != nil {
			return fmt.Errorf("attaching certification: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, rec)
		}
		printCertification(out, rec)
		return nil
	},
}

var certRevokeCmd = &cobra.Command{
	Use:   "revoke <certification-id>",
	Short: "Revoke a certification (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		rec, err := ledgerClient.RevokeCertification(context.Background(), args[0], reason)
		if err != nil {
			return fmt.Errorf("revoking %s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, rec)
		}
		printCertification(out, rec)
		return nil
	},
}

var certListCmd = &cobra.Command{
	Use:   "list <microlot-id>",
	Short: "List a microlot's certifications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		certs, err := ledgerClient.ListCertifications(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("listing certifications: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, certs)
		}
		printCertifications(out, certs)
		return nil
	},
}

func init() {
	qcRecordCmd.Flags().String("type", "", "test type: PHYSICAL, SENSORY or FULL (required)")
	qcRecordCmd.Flags().String("tester", "", "tester ID (default: the acting actor)")
	qcRecordCmd.Flags().String("date", "", "test date (YYYY-MM-DD or RFC 3339, default now)")
	qcRecordCmd.Flags().String("notes", "", "free-form notes")
	qcRecordCmd.Flags().Float64("moisture", 0, "moisture percentage")
	qcRecordCmd.Flags().Int("defects", 0, "defect count")
	qcRecordCmd.Flags().Float64("density", 0, "density in g/L")
	qcRecordCmd.Flags().Float64("aroma", 0, "aroma score")
	qcRecordCmd.Flags().Float64("acidity", 0, "acidity score")
	qcRecordCmd.Flags().Float64("body", 0, "body score")
	qcRecordCmd.Flags().Float64("flavor", 0, "flavor score")
	qcRecordCmd.Flags().Float64("sca", 0, "SCA cupping score")
	_ = qcRecordCmd.MarkFlagRequired("type")
	qcCmd.AddCommand(qcRecordCmd, qcListCmd)

	certAttachCmd.Flags().String("type", "", "certification type, e.g. ORGANIC (required)")
	certAttachCmd.Flags().String("issuer", "", "issuing body (required)")
	certAttachCmd.Flags().String("number", "", "certificate number (required)")
	certAttachCmd.Flags().String("issued", "", "issue date, YYYY-MM-DD (required)")
	certAttachCmd.Flags().String("expires", "", "expiry date, YYYY-MM-DD (required)")
	for _, name := range []string{"type", "issuer", "number", "issued", "expires"} {
		_ = certAttachCmd.MarkFlagRequired(name)
	}
	certRevokeCmd.Flags().String("reason", "", "revocation reason (required)")
	_ = certRevokeCmd.MarkFlagRequired("reason")
	certCmd.AddCommand(certAttachCmd, certRevokeCmd, certListCmd)
}
